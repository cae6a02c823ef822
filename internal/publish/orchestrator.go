// Package publish runs the publish tool, works out which packages it tagged
// from the tool's announcements, and mirrors each newly tagged version to
// the hosting platform as a release.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/papapumpkin/comet/internal/changelog"
	"github.com/papapumpkin/comet/internal/git"
	"github.com/papapumpkin/comet/internal/host"
	"github.com/papapumpkin/comet/internal/metrics"
	"github.com/papapumpkin/comet/internal/pipeline"
	"github.com/papapumpkin/comet/internal/telemetry"
	"github.com/papapumpkin/comet/internal/tool"
	"github.com/papapumpkin/comet/internal/workspace"
)

// ReleaseMode selects how published packages become hosted releases.
type ReleaseMode string

const (
	// ReleasesDisabled creates no releases.
	ReleasesDisabled ReleaseMode = "disabled"
	// ReleasesEnabled creates one release per published package.
	ReleasesEnabled ReleaseMode = "enabled"
	// ReleasesAggregate creates a single release covering the whole batch.
	ReleasesAggregate ReleaseMode = "aggregate"
)

// AggregateTagName returns the tag of an aggregate release made at t.
func AggregateTagName(t time.Time) string {
	return "release-" + t.UTC().Format("200601021504")
}

// Options configures a publish run.
type Options struct {
	PublishCommand string
	ReleaseMode    ReleaseMode
	Join           JoinPolicy
}

// PublishedPackage is a package version the publish tool tagged.
type PublishedPackage struct {
	Name    string `json:"name" toml:"name"`
	Version string `json:"version" toml:"version"`
}

// Result reports what a publish run released. Packages is in announcement
// order and keeps duplicates.
type Result struct {
	Released bool
	Packages []PublishedPackage
	Releases []string // tags of the releases created
}

// Orchestrator runs the publish flow against one checkout.
type Orchestrator struct {
	Git      git.Facade
	Packages workspace.Reader
	Tool     tool.Runner
	Host     host.Client
	Dir      string
	Logger   *slog.Logger
	Events   *telemetry.Emitter
	Metrics  *metrics.Recorder
	Now      func() time.Time // nil uses time.Now
}

type runState struct {
	opts     Options
	output   string
	pkgs     *workspace.Packages
	released []workspace.Package
	created  []string
}

// Run publishes, correlates the announced tags with workspace packages,
// and creates releases according to opts.ReleaseMode. A publish tool
// failure aborts the run before any tag accounting.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.ReleaseMode == "" {
		opts.ReleaseMode = ReleasesEnabled
	}
	st := &runState{opts: opts}

	runner := pipeline.Runner{Logger: o.logger(), Events: o.Events}
	err := runner.Run(ctx,
		pipeline.Stage{Name: "run-publish-tool", Run: func(ctx context.Context) error { return o.runPublishTool(ctx, st) }},
		pipeline.Stage{Name: "push-tags", Run: o.Git.PushTags},
		pipeline.Stage{Name: "read-packages", Run: func(context.Context) error { return o.readPackages(st) }},
		pipeline.Stage{Name: "correlate", Run: func(context.Context) error { return o.correlate(st) }},
		pipeline.Stage{Name: "create-releases", Run: func(ctx context.Context) error { return o.createReleases(ctx, st) }},
	)
	if err != nil {
		return nil, err
	}

	res := &Result{Released: len(st.released) > 0, Releases: st.created}
	for _, pkg := range st.released {
		res.Packages = append(res.Packages, PublishedPackage{Name: pkg.Name, Version: pkg.Version})
	}
	return res, nil
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Orchestrator) runPublishTool(ctx context.Context, st *runState) error {
	res, err := o.Tool.Run(ctx, st.opts.PublishCommand)
	o.Metrics.ToolRun("publish", err)
	if err != nil {
		return err
	}
	st.output = res.Stdout
	return nil
}

func (o *Orchestrator) readPackages(st *runState) error {
	pkgs, err := o.Packages.Read(o.Dir)
	if err != nil {
		return fmt.Errorf("reading packages: %w", err)
	}
	st.pkgs = pkgs
	return nil
}

func (o *Orchestrator) correlate(st *runState) error {
	events := ParseAnnouncements(st.output, st.pkgs.Multi())
	released, err := Correlate(events, st.pkgs)
	if err != nil {
		return err
	}
	st.released = released
	o.logger().Info("publish tool tagged packages", slog.Int("count", len(released)))
	return nil
}

func (o *Orchestrator) createReleases(ctx context.Context, st *runState) error {
	if len(st.released) == 0 {
		return nil
	}
	switch st.opts.ReleaseMode {
	case ReleasesDisabled:
		return nil
	case ReleasesAggregate:
		return o.createAggregate(ctx, st)
	case ReleasesEnabled:
		return o.createPerPackage(ctx, st)
	default:
		return fmt.Errorf("unknown release mode %q", st.opts.ReleaseMode)
	}
}

// existingTags lists release tags when the backend supports it. Backends
// that cannot list return nil and every release is attempted.
func (o *Orchestrator) existingTags(ctx context.Context) (map[string]bool, error) {
	if !o.Host.CanListReleases() {
		return nil, nil
	}
	rels, err := o.Host.ListReleases(ctx)
	if err != nil {
		return nil, err
	}
	tags := make(map[string]bool, len(rels))
	for _, r := range rels {
		tags[r.TagName] = true
	}
	return tags, nil
}

// createPerPackage fans out one release per tagged package. A tag announced
// twice is released once.
func (o *Orchestrator) createPerPackage(ctx context.Context, st *runState) error {
	existing, err := o.existingTags(ctx)
	if err != nil {
		return err
	}

	type job struct {
		pkg workspace.Package
		tag string
	}
	var jobs []job
	seen := make(map[string]bool, len(st.released))
	for _, pkg := range st.released {
		tag := TagName(pkg, st.pkgs.Multi())
		if seen[tag] {
			continue
		}
		seen[tag] = true
		if existing[tag] {
			o.Metrics.Release("existing")
			o.logger().Info("release already exists, skipping", slog.String("tag", tag))
			continue
		}
		jobs = append(jobs, job{pkg: pkg, tag: tag})
	}

	creator := &ReleaseCreator{Host: o.Host, Logger: o.Logger, Events: o.Events, Metrics: o.Metrics}
	created := make([]bool, len(jobs))
	err = fanOut(ctx, st.opts.Join, len(jobs), func(ctx context.Context, i int) error {
		ok, err := creator.Create(ctx, jobs[i].pkg, jobs[i].tag)
		created[i] = ok
		return err
	})
	for i, ok := range created {
		if ok {
			st.created = append(st.created, jobs[i].tag)
		}
	}
	return err
}

// createAggregate makes one release whose body stacks every published
// package's changelog section. Packages without a changelog file are left
// out; if none has one, no release is made.
func (o *Orchestrator) createAggregate(ctx context.Context, st *runState) error {
	tag := AggregateTagName(o.now())
	existing, err := o.existingTags(ctx)
	if err != nil {
		return err
	}
	if existing[tag] {
		o.Metrics.Release("existing")
		o.logger().Info("aggregate release already exists, skipping", slog.String("tag", tag))
		return nil
	}

	var sections []string
	prerelease := false
	for _, pkg := range st.released {
		entry, err := changelog.Read(pkg.Dir, pkg.Version)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("release %s: %w", tag, err)
		}
		sections = append(sections, fmt.Sprintf("## %s@%s\n\n%s", pkg.Name, pkg.Version, entry.Content))
		prerelease = prerelease || IsPrerelease(pkg.Version)
	}
	if len(sections) == 0 {
		o.Metrics.Release("skipped")
		_ = o.Events.Emit(telemetry.Event{Kind: telemetry.KindReleaseSkipped, Data: map[string]any{"tag": tag, "reason": "no changelog sections"}})
		o.logger().Debug("aggregate release skipped, no package has a changelog", slog.String("tag", tag))
		return nil
	}

	rel, err := o.Host.CreateRelease(ctx, host.NewRelease{
		Name:       tag,
		TagName:    tag,
		Body:       strings.Join(sections, "\n\n"),
		Prerelease: prerelease,
	})
	if err != nil {
		o.Metrics.Release("error")
		return fmt.Errorf("release %s: %w", tag, err)
	}
	o.Metrics.Release("created")
	_ = o.Events.Emit(telemetry.Event{Kind: telemetry.KindReleaseCreated, Data: map[string]any{"tag": tag, "id": rel.ID, "packages": len(sections)}})
	o.logger().Info("aggregate release created", slog.String("tag", tag), slog.Int("packages", len(sections)))
	st.created = append(st.created, tag)
	return nil
}
