package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sells-group/docket-cli/internal/model"
	"github.com/sells-group/docket-cli/internal/refresh"
	"github.com/sells-group/docket-cli/internal/store"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [cnr]...",
	Short: "Refresh tracked cases from the portal",
	Long: `Re-scrapes cases and replaces their stored records. With CNR arguments only
those cases are refreshed; without arguments every stale case in the
workspace (next hearing due and not synced recently) is refreshed under a
bounded worker pool.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cases, jobs, pool, err := newPersistence(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		ctrl, cleanup, err := newFlowController(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		workspaceID, err := workspaceFlag(cmd)
		if err != nil {
			return err
		}

		orch := refresh.New(cases, jobs, ctrl, cfg.Refresh.Workers)
		if _, err := orch.Recover(cmd.Context()); err != nil {
			return err
		}

		var job *model.RefreshJob
		if len(args) > 0 {
			candidates := make([]store.Candidate, 0, len(args))
			for _, cino := range args {
				rec, err := cases.GetByCINO(cmd.Context(), cino)
				if err != nil {
					return fmt.Errorf("case %s: %w", cino, err)
				}
				candidates = append(candidates, store.Candidate{ID: rec.ID, CINO: rec.Case.CINO})
			}
			job, err = orch.Run(cmd.Context(), workspaceID, candidates)
		} else {
			staleBefore := time.Now().Add(-time.Duration(cfg.Refresh.StaleHours) * time.Hour)
			job, err = orch.RunAll(cmd.Context(), workspaceID, staleBefore)
		}
		if err != nil {
			return err
		}

		fmt.Printf("job %s: %s  %d/%d completed, %d failed\n",
			job.ID, job.Status, job.CompletedCases, job.TotalCases, job.FailedCases)
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect bulk refresh jobs",
}

var jobsActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "List queued and running jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, jobs, pool, err := newPersistence(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		active, err := jobs.Active(cmd.Context())
		if err != nil {
			return err
		}
		if len(active) == 0 {
			fmt.Println("no active jobs")
			return nil
		}
		for _, j := range active {
			fmt.Printf("%s  %s  %d/%d completed, %d failed\n",
				j.ID, j.Status, j.CompletedCases, j.TotalCases, j.FailedCases)
		}
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, jobs, pool, err := newPersistence(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q: %w", args[0], err)
		}
		job, err := jobs.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var jobsRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Abort jobs left running by a crash",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, jobs, pool, err := newPersistence(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := jobs.AbortRunning(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("aborted %d job(s)\n", n)
		return nil
	},
}

func init() {
	refreshCmd.Flags().String("workspace", uuid.Nil.String(), "workspace to refresh")

	jobsCmd.AddCommand(jobsActiveCmd, jobsShowCmd, jobsRecoverCmd)
	rootCmd.AddCommand(refreshCmd, jobsCmd)
}
