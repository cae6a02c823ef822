package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/comet/internal/report"
	"github.com/papapumpkin/comet/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Decide between versioning and publishing, and do it",
	Long: `Reads the pending change descriptors and runs exactly one flow:

  - changesets pending: update the version proposal for the base branch
  - none pending, publish configured: publish and create releases
  - otherwise: report and exit

Step outputs are appended to $GITHUB_OUTPUT when running under GitHub Actions.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	printer := ui.New()
	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	s, err := openSession(ctx, printer)
	if err != nil {
		return err
	}
	ctrl, version := s.controller()
	if err := s.prepareGit(ctx); err != nil {
		return errors.Join(err, s.close())
	}

	end := printer.Group("comet run")
	out, runErr := ctrl.Run(ctx)
	end()

	if runErr == nil {
		printOutcome(printer, out, version.branch)
	}
	return errors.Join(runErr, s.finish(out))
}

// outputsFor starts the outputs of a command that forces one flow.
func outputsFor(mode string, hasChangesets bool) report.Outputs {
	return report.Outputs{Mode: mode, HasChangesets: hasChangesets}
}
