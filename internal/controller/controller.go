// Package controller picks the one flow a run performs, from whether change
// descriptors are pending and whether a publish tool is configured, and
// dispatches to the matching orchestrator.
package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papapumpkin/comet/internal/changeset"
	"github.com/papapumpkin/comet/internal/proposal"
	"github.com/papapumpkin/comet/internal/publish"
	"github.com/papapumpkin/comet/internal/report"
	"github.com/papapumpkin/comet/internal/telemetry"
)

// Mode is the flow selected for a run.
type Mode string

const (
	// ModeNone: no changesets and nothing to publish.
	ModeNone Mode = "none"
	// ModePublish: no pending changesets, so the merged versions get published.
	ModePublish Mode = "publish"
	// ModeSkip: changesets exist but none carries a release intent.
	ModeSkip Mode = "skip"
	// ModeVersion: pending changesets go into the version proposal.
	ModeVersion Mode = "version"
)

// Decide selects the mode.
func Decide(hasChangesets, hasNonEmpty, hasPublish bool) Mode {
	switch {
	case !hasChangesets && hasPublish:
		return ModePublish
	case !hasChangesets:
		return ModeNone
	case !hasNonEmpty:
		return ModeSkip
	default:
		return ModeVersion
	}
}

// Reason explains a mode in one line for logs.
func (m Mode) Reason() string {
	switch m {
	case ModeNone:
		return "no changesets found"
	case ModePublish:
		return "no changesets pending, publishing"
	case ModeSkip:
		return "all changesets are empty, not creating a proposal"
	case ModeVersion:
		return "changesets pending, updating the version proposal"
	default:
		return string(m)
	}
}

// Versioner runs the version flow. *proposal.Orchestrator satisfies it.
type Versioner interface {
	Run(ctx context.Context, opts proposal.Options) (*proposal.Result, error)
}

// Publisher runs the publish flow. *publish.Orchestrator satisfies it.
type Publisher interface {
	Run(ctx context.Context, opts publish.Options) (*publish.Result, error)
}

// Controller wires the change-state reader to the two orchestrators.
type Controller struct {
	Dir        string
	HasPublish bool
	Version    Versioner
	Publish    Publisher

	// VersionOptions and PublishOptions are passed through; the controller
	// fills in the pre-release state and publish capability.
	VersionOptions proposal.Options
	PublishOptions publish.Options

	ReadState func(root string) (changeset.State, error) // nil uses changeset.Read
	Logger    *slog.Logger
	Events    *telemetry.Emitter
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// State reads the pending change descriptors and pre-release marker.
func (c *Controller) State() (changeset.State, error) {
	read := c.ReadState
	if read == nil {
		read = changeset.Read
	}
	st, err := read(c.Dir)
	if err != nil {
		return changeset.State{}, fmt.Errorf("reading change state: %w", err)
	}
	return st, nil
}

// Run decides the mode and runs exactly one orchestrator, or none.
func (c *Controller) Run(ctx context.Context) (report.Outputs, error) {
	st, err := c.State()
	if err != nil {
		return report.Outputs{}, err
	}
	mode := Decide(st.HasChangesets(), st.HasNonEmpty(), c.HasPublish)
	out := report.Outputs{Mode: string(mode), HasChangesets: st.HasNonEmpty()}

	c.logger().Info(mode.Reason(), slog.String("mode", string(mode)))
	_ = c.Events.Emit(telemetry.Event{Kind: telemetry.KindRunStart, Data: map[string]any{
		"mode": mode, "changesets": len(st.Changesets), "pre": st.Pre.InPreMode(),
	}})

	switch mode {
	case ModePublish:
		err = c.runPublish(ctx, &out)
	case ModeVersion:
		err = c.runVersion(ctx, st, &out)
	}

	done := map[string]any{"mode": mode, "published": out.Published, "pull_request": out.PullRequestNumber}
	if err != nil {
		done["error"] = err.Error()
	}
	_ = c.Events.Emit(telemetry.Event{Kind: telemetry.KindRunDone, Data: done})
	return out, err
}

func (c *Controller) runPublish(ctx context.Context, out *report.Outputs) error {
	res, err := c.Publish.Run(ctx, c.PublishOptions)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	out.Published = res.Released
	out.Releases = res.Releases
	for _, p := range res.Packages {
		out.PublishedPackages = append(out.PublishedPackages, report.Package{Name: p.Name, Version: p.Version})
	}
	return nil
}

func (c *Controller) runVersion(ctx context.Context, st changeset.State, out *report.Outputs) error {
	opts := c.VersionOptions
	opts.PreState = st.Pre
	opts.HasPublish = c.HasPublish
	res, err := c.Version.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	out.PullRequestNumber = res.Number
	return nil
}
