package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Manage tracked cases",
}

var casesAddCmd = &cobra.Command{
	Use:   "add <cnr>...",
	Short: "Track cases by CNR number",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cases, _, pool, err := newPersistence(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		workspaceID, err := workspaceFlag(cmd)
		if err != nil {
			return err
		}

		for _, cino := range args {
			rec, err := cases.Create(cmd.Context(), workspaceID, cino)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", rec.ID, rec.Case.CINO)
		}
		return nil
	},
}

var casesShowCmd = &cobra.Command{
	Use:   "show <cnr>",
	Short: "Print the stored record for a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cases, _, pool, err := newPersistence(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		rec, err := cases.GetByCINO(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cases, jobs, pool, err := newPersistence(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := cases.Migrate(cmd.Context()); err != nil {
			return err
		}
		if err := jobs.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	},
}

func workspaceFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("workspace")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --workspace %q: %w", raw, err)
	}
	return id, nil
}

func init() {
	casesAddCmd.Flags().String("workspace", uuid.Nil.String(), "workspace the cases belong to")

	casesCmd.AddCommand(casesAddCmd, casesShowCmd)
	rootCmd.AddCommand(casesCmd, migrateCmd)
}
