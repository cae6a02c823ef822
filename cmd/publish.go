package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/comet/internal/controller"
	"github.com/papapumpkin/comet/internal/publish"
	"github.com/papapumpkin/comet/internal/report"
	"github.com/papapumpkin/comet/internal/ui"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Run the publish tool and create releases for what it tagged",
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().String("release-mode", "", "override release_mode: disabled, enabled or aggregate")
	publishCmd.Flags().Bool("collect-errors", false, "finish every release write before reporting failures")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	printer := ui.New()
	ctx, cancel := setupSignalContext(printer)
	defer cancel()

	s, err := openSession(ctx, printer)
	if err != nil {
		return err
	}
	if !s.cfg.HasPublish() {
		return errors.Join(errors.New("no publish command configured (set publish_command)"), s.close())
	}
	opts := s.publishOptions()
	if v, _ := cmd.Flags().GetString("release-mode"); v != "" {
		opts.ReleaseMode = publish.ReleaseMode(v)
	}
	if v, _ := cmd.Flags().GetBool("collect-errors"); v {
		opts.Join = publish.JoinCollectAll
	}
	if err := s.prepareGit(ctx); err != nil {
		return errors.Join(err, s.close())
	}

	out := outputsFor(string(controller.ModePublish), false)
	end := printer.Group("publish")
	res, runErr := s.publisher().Run(ctx, opts)
	end()
	if runErr == nil {
		out.Published = res.Released
		out.Releases = res.Releases
		for _, p := range res.Packages {
			out.PublishedPackages = append(out.PublishedPackages, report.Package{Name: p.Name, Version: p.Version})
		}
		printer.Published(out)
	}
	return errors.Join(runErr, s.finish(out))
}
