package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/docket-cli/internal/extract"
	"github.com/sells-group/docket-cli/pkg/portal"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Step through a portal search session",
	Long: `Drives one portal search session step by step: start a session, save the
captcha image, submit the solved code, then fetch the case record. Party and
advocate searches add a list/select step between submit and fetch.`,
}

var searchStartCmd = &cobra.Command{
	Use:   "start <cnr|party|advocate>",
	Short: "Open a session and request a captcha",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, cleanup, err := newFlowController(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		payload, err := parsePayload(cmd)
		if err != nil {
			return err
		}

		id, err := ctrl.Start(cmd.Context(), args[0], payload)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var searchCaptchaCmd = &cobra.Command{
	Use:   "captcha <session-id>",
	Short: "Download the session's captcha image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, cleanup, err := newFlowController(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		img, err := ctrl.CaptchaImage(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if err := os.WriteFile(out, img, 0o644); err != nil {
			return err
		}
		fmt.Printf("captcha written to %s\n", out)
		return nil
	},
}

var searchSubmitCmd = &cobra.Command{
	Use:   "submit <session-id> <captcha-code>",
	Short: "Submit the solved captcha and run the search",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, cleanup, err := newFlowController(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := ctrl.SubmitCaptcha(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		st, err := ctrl.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("state: %s\n", st.State)
		return nil
	},
}

var searchListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List the matched cases of a party or advocate search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, cleanup, err := newFlowController(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		entries, err := ctrl.CaseList(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%3d  %s\n", e.Index, e.Display)
		}
		return nil
	},
}

var searchSelectCmd = &cobra.Command{
	Use:   "select <session-id> <index>",
	Short: "Select one case from the matched list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, cleanup, err := newFlowController(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("index must be a number: %w", err)
		}

		c, err := ctrl.SelectCase(cmd.Context(), args[0], index)
		if err != nil {
			return err
		}
		fmt.Printf("selected %s (%s)\n", c.Title, c.CINO)
		return nil
	},
}

var searchFetchCmd = &cobra.Command{
	Use:   "fetch <session-id>",
	Short: "Fetch the full case record for the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, cleanup, err := newFlowController(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := ctrl.FetchResults(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(res.Case)
	},
}

var searchStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the session's state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, cleanup, err := newFlowController(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := ctrl.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("state: %s  mode: %s  retries: %d\n", st.State, st.Mode, st.Retries)
		if st.LastError != "" {
			fmt.Printf("last error: %s\n", st.LastError)
		}
		return nil
	},
}

var searchDistrictsCmd = &cobra.Command{
	Use:   "districts <state-code>",
	Short: "List district codes for a state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := portal.New(cfg.Portal)
		if err != nil {
			return err
		}
		if _, err := client.Bootstrap(cmd.Context()); err != nil {
			return err
		}
		fragment, err := client.FillDistricts(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printOptions(fragment)
		return nil
	},
}

var searchComplexesCmd = &cobra.Command{
	Use:   "complexes <state-code> <district-code>",
	Short: "List court complex codes for a district",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := portal.New(cfg.Portal)
		if err != nil {
			return err
		}
		if _, err := client.Bootstrap(cmd.Context()); err != nil {
			return err
		}
		fragment, err := client.FillComplexes(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printOptions(fragment)
		return nil
	},
}

func printOptions(fragment string) {
	for _, opt := range extract.Options(fragment) {
		fmt.Printf("%-24s %s\n", opt.Value, opt.Label)
	}
}

// parsePayload turns repeated --set key=value flags into the search payload.
func parsePayload(cmd *cobra.Command) (map[string]string, error) {
	pairs, _ := cmd.Flags().GetStringArray("set")
	payload := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
		}
		payload[k] = v
	}
	return payload, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	searchStartCmd.Flags().StringArray("set", nil, "search input as key=value (cino, petres_name, rgyear, state_code, dist_code, court_complex_code, ...)")
	searchCaptchaCmd.Flags().String("out", "captcha.png", "path to write the captcha image")

	searchCmd.AddCommand(searchStartCmd, searchCaptchaCmd, searchSubmitCmd,
		searchListCmd, searchSelectCmd, searchFetchCmd, searchStatusCmd,
		searchDistrictsCmd, searchComplexesCmd)
	rootCmd.AddCommand(searchCmd)
}
