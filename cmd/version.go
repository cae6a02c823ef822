package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/comet/internal/changeset"
	"github.com/papapumpkin/comet/internal/controller"
	"github.com/papapumpkin/comet/internal/ui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Run the version tool and update the version proposal",
	Long: `Runs the version flow regardless of the pending change state: switches to the
version branch, runs the version tool, commits, force-pushes, and creates or
updates the proposal against the base branch.`,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().String("title", "", "override the proposal title")
	versionCmd.Flags().String("commit", "", "override the commit message")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
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
	if v, _ := cmd.Flags().GetString("title"); v != "" {
		opts.Title = v
	}
	if v, _ := cmd.Flags().GetString("commit"); v != "" {
		opts.CommitMessage = v
	}
	if err := s.prepareGit(ctx); err != nil {
		return errors.Join(err, s.close())
	}

	out := outputsFor(string(controller.ModeVersion), st.HasNonEmpty())
	end := printer.Group("version")
	res, runErr := s.versioner().Run(ctx, opts)
	end()
	if runErr == nil {
		out.PullRequestNumber = res.Number
		s.logger.Info("version proposal reconciled",
			slog.Int("number", res.Number),
			slog.Bool("created", res.Created),
			slog.Int("changed", len(res.Changed)))
		printer.Proposal(res.Number, res.Branch)
	}
	return errors.Join(runErr, s.finish(out))
}
