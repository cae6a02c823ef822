package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/comet/internal/changeset"
	"github.com/papapumpkin/comet/internal/config"
	"github.com/papapumpkin/comet/internal/controller"
	"github.com/papapumpkin/comet/internal/report"
	"github.com/papapumpkin/comet/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending changes and what the next run would do",
	Long: `Reads the change descriptors and pre-release state and prints the flow the
next run would select. When report_file is set, the last recorded run is shown
too. Nothing is written and no API is called.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dir, err := resolveWorkDir(cfg.WorkDir)
	if err != nil {
		return err
	}
	data, err := statusData(dir, cfg)
	if err != nil {
		return err
	}
	printer := ui.New()
	printer.Out = cmd.OutOrStdout()
	printer.CI = false
	printer.Status(data)
	return nil
}

// statusData gathers the read-only view printed by the status command.
func statusData(dir string, cfg config.Config) (ui.StatusData, error) {
	st, err := changeset.Read(dir)
	if err != nil {
		return ui.StatusData{}, fmt.Errorf("reading change state: %w", err)
	}
	mode := controller.Decide(st.HasChangesets(), st.HasNonEmpty(), cfg.HasPublish())
	d := ui.StatusData{
		Mode:       string(mode),
		Reason:     mode.Reason(),
		Changesets: len(st.Changesets),
		HasPublish: cfg.HasPublish(),
		PreMode:    st.Pre.InPreMode(),
	}
	for _, c := range st.Changesets {
		if len(c.Releases) == 0 {
			d.Empty++
		}
	}
	if st.Pre != nil {
		d.PreTag = st.Pre.Tag
	}

	if cfg.ReportFile == "" {
		return d, nil
	}
	last, err := report.ReadTOML(cfg.ReportFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return ui.StatusData{}, err
	default:
		d.Last = &last
		d.LastPath = cfg.ReportFile
	}
	return d, nil
}
