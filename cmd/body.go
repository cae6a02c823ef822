package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/comet/internal/changeset"
	"github.com/papapumpkin/comet/internal/ui"
)

var bodyCmd = &cobra.Command{
	Use:   "body",
	Short: "Print the version proposal body without committing or calling write APIs",
	Long: `Runs the version flow up to composing the proposal body and prints it to
stdout. The version branch is switched to and reset, and the version tool runs
in the checkout, but nothing is committed, pushed, or written to the API.`,
	RunE: runBody,
}

func init() {
	bodyCmd.Flags().Int("max-body-size", 0, "override max_body_size")
	rootCmd.AddCommand(bodyCmd)
}

func runBody(cmd *cobra.Command, _ []string) error {
	printer := ui.New()
	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	s, err := openSession(ctx, printer)
	if err != nil {
		return err
	}
	st, err := changeset.Read(s.dir)
	if err != nil {
		return errors.Join(fmt.Errorf("reading change state: %w", err), s.close())
	}
	opts, err := s.versionOptions(ctx)
	if err != nil {
		return errors.Join(err, s.close())
	}
	opts.PreState = st.Pre
	opts.DryRun = true
	if v, _ := cmd.Flags().GetInt("max-body-size"); v > 0 {
		opts.MaxBodySize = v
	}

	res, runErr := s.versioner().Run(ctx, opts)
	if runErr == nil {
		fmt.Fprintln(cmd.OutOrStdout(), res.Title)
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), res.Body)
	}
	return errors.Join(runErr, s.close())
}
