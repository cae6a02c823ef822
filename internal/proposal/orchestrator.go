// Package proposal keeps exactly one open version proposal per base branch.
// A run regenerates the version branch from the base commit, lets the
// version tool bump packages, and creates or updates the pull request that
// carries the result.
package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/papapumpkin/comet/internal/changelog"
	"github.com/papapumpkin/comet/internal/changeset"
	"github.com/papapumpkin/comet/internal/git"
	"github.com/papapumpkin/comet/internal/host"
	"github.com/papapumpkin/comet/internal/metrics"
	"github.com/papapumpkin/comet/internal/pipeline"
	"github.com/papapumpkin/comet/internal/telemetry"
	"github.com/papapumpkin/comet/internal/tool"
	"github.com/papapumpkin/comet/internal/workspace"
)

// BranchPrefix is prepended to the base branch name to form the version branch.
const BranchPrefix = "changeset-release/"

// Defaults for the proposal's title and commit message.
const (
	DefaultTitle         = "Version Packages"
	DefaultCommitMessage = "Version Packages"
)

// VersionBranch returns the version branch for base.
func VersionBranch(base string) string {
	return BranchPrefix + base
}

// WithPreTag appends " (<tag>)" to s when a pre-release state is present.
func WithPreTag(s string, pre *changeset.PreState) string {
	if pre == nil || pre.Tag == "" {
		return s
	}
	return s + " (" + pre.Tag + ")"
}

// Options configures a single version run.
type Options struct {
	Base           string // base branch the proposal targets
	BaseSHA        string // commit the version branch is reset to; empty uses HEAD before switching
	VersionCommand string
	HasPublish     bool
	Title          string
	CommitMessage  string
	MaxBodySize    int
	Ignore         []string            // package names left out of the proposal body
	PreState       *changeset.PreState // nil outside pre-release mode
	DryRun         bool                // stop after composing; no commit, push, or API writes
}

// Result describes the reconciled proposal.
type Result struct {
	Created bool
	Number  int
	Branch  string
	Title   string
	Body    string
	Changed []workspace.Package
}

// Orchestrator runs the version flow against one checkout.
type Orchestrator struct {
	Git      git.Facade
	Packages workspace.Reader
	Tool     tool.Runner
	Host     host.Client
	Dir      string
	Logger   *slog.Logger
	Events   *telemetry.Emitter
	Metrics  *metrics.Recorder
}

// runState carries values between stages.
type runState struct {
	opts     Options
	branch   string
	baseSHA  string
	before   map[string]string
	changed  []workspace.Package
	entries  []PackageEntry
	existing []host.Proposal
	body     string
	result   *Result
}

// Run regenerates the version branch and reconciles its proposal. Stages
// run strictly in order; only the proposal search and the changelog gather
// run concurrently.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.CommitMessage == "" {
		opts.CommitMessage = DefaultCommitMessage
	}
	st := &runState{
		opts:    opts,
		branch:  VersionBranch(opts.Base),
		baseSHA: opts.BaseSHA,
	}
	st.result = &Result{Branch: st.branch, Title: WithPreTag(opts.Title, opts.PreState)}

	stages := []pipeline.Stage{
		{Name: "switch-branch", Run: func(ctx context.Context) error { return o.switchBranch(ctx, st) }},
		{Name: "reset", Run: func(ctx context.Context) error { return o.Git.Reset(ctx, st.baseSHA) }},
		{Name: "snapshot", Run: func(context.Context) error { return o.snapshot(st) }},
		{Name: "run-version-tool", Run: func(ctx context.Context) error { return o.runVersionTool(ctx, st) }},
		{Name: "diff", Run: func(context.Context) error { return o.diff(st) }},
		{Name: "gather+search", Run: func(ctx context.Context) error { return o.gatherAndSearch(ctx, st) }},
	}
	if !opts.DryRun {
		stages = append(stages,
			pipeline.Stage{Name: "commit", Run: func(ctx context.Context) error { return o.commit(ctx, st) }},
			pipeline.Stage{Name: "push", Run: func(ctx context.Context) error { return o.Git.Push(ctx, st.branch, true) }},
		)
	}
	stages = append(stages, pipeline.Stage{Name: "compose", Run: func(context.Context) error { return o.compose(st) }})
	if !opts.DryRun {
		stages = append(stages, pipeline.Stage{Name: "reconcile", Run: func(ctx context.Context) error { return o.reconcile(ctx, st) }})
	}

	runner := pipeline.Runner{Logger: o.logger(), Events: o.Events}
	if err := runner.Run(ctx, stages...); err != nil {
		return nil, err
	}
	return st.result, nil
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Orchestrator) switchBranch(ctx context.Context, st *runState) error {
	if st.baseSHA == "" {
		sha, err := o.Git.HeadSHA(ctx)
		if err != nil {
			return err
		}
		st.baseSHA = sha
	}
	return o.Git.SwitchToMaybeExistingBranch(ctx, st.branch)
}

func (o *Orchestrator) snapshot(st *runState) error {
	pkgs, err := o.Packages.Read(o.Dir)
	if err != nil {
		return fmt.Errorf("reading packages: %w", err)
	}
	st.before = pkgs.Versions()
	return nil
}

func (o *Orchestrator) runVersionTool(ctx context.Context, st *runState) error {
	_, err := o.Tool.Run(ctx, st.opts.VersionCommand)
	o.Metrics.ToolRun("version", err)
	return err
}

func (o *Orchestrator) diff(st *runState) error {
	after, err := o.Packages.Read(o.Dir)
	if err != nil {
		return fmt.Errorf("reading packages: %w", err)
	}
	st.changed = workspace.Changed(st.before, after)
	st.result.Changed = st.changed
	o.logger().Info("packages versioned", slog.Int("changed", len(st.changed)))
	return nil
}

// gatherAndSearch reads changelog entries and looks up an existing
// proposal at the same time. The two touch disjoint resources.
func (o *Orchestrator) gatherAndSearch(ctx context.Context, st *runState) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := o.Host.SearchOpenProposals(gctx, st.opts.Base, st.branch)
		if err != nil {
			return err
		}
		st.existing = found
		return nil
	})
	g.Go(func() error {
		entries, err := gatherEntries(st.changed, st.opts.Ignore)
		if err != nil {
			return err
		}
		st.entries = entries
		return nil
	})
	return g.Wait()
}

// gatherEntries extracts the new version's changelog section for every
// changed package not in ignore. A missing changelog or section is an error
// here: a bump without release notes means the tooling is out of sync.
// Entries are ordered by highest level, most significant first; ties keep
// discovery order.
func gatherEntries(changed []workspace.Package, ignore []string) ([]PackageEntry, error) {
	entries := make([]PackageEntry, 0, len(changed))
	for _, pkg := range changed {
		if slices.Contains(ignore, pkg.Name) {
			continue
		}
		entry, err := changelog.Read(pkg.Dir, pkg.Version)
		if err != nil {
			return nil, fmt.Errorf("changelog for %s@%s: %w", pkg.Name, pkg.Version, err)
		}
		entries = append(entries, PackageEntry{
			HighestLevel: entry.HighestLevel,
			Private:      pkg.Private,
			Content:      entry.Content,
			Header:       fmt.Sprintf("## %s@%s", pkg.Name, pkg.Version),
		})
	}
	slices.SortStableFunc(entries, func(a, b PackageEntry) int {
		return int(b.HighestLevel) - int(a.HighestLevel)
	})
	return entries, nil
}

func (o *Orchestrator) commit(ctx context.Context, st *runState) error {
	clean, err := o.Git.IsClean(ctx)
	if err != nil {
		return err
	}
	if clean {
		o.logger().Info("working tree clean after versioning, nothing to commit")
		return nil
	}
	return o.Git.CommitAll(ctx, WithPreTag(st.opts.CommitMessage, st.opts.PreState))
}

func (o *Orchestrator) compose(st *runState) error {
	st.body = ComposeBody(BodyInput{
		HasPublish: st.opts.HasPublish,
		PreState:   st.opts.PreState,
		Entries:    st.entries,
		MaxChars:   st.opts.MaxBodySize,
		Branch:     st.opts.Base,
	})
	st.result.Body = st.body
	return nil
}

// reconcile creates the proposal when none is open, otherwise rewrites the
// first match in place.
func (o *Orchestrator) reconcile(ctx context.Context, st *runState) error {
	title := st.result.Title
	action := "updated"
	var pr *host.Proposal
	var err error
	if len(st.existing) == 0 {
		action = "created"
		pr, err = o.Host.CreateProposal(ctx, host.NewProposal{
			Base:  st.opts.Base,
			Head:  st.branch,
			Title: title,
			Body:  st.body,
		})
	} else {
		if len(st.existing) > 1 {
			o.logger().Warn("multiple open proposals found, updating the first",
				slog.Int("count", len(st.existing)),
				slog.Int("number", st.existing[0].Number))
		}
		pr, err = o.Host.UpdateProposal(ctx, st.existing[0].Number, title, st.body)
	}
	if err != nil {
		return err
	}

	st.result.Created = action == "created"
	st.result.Number = pr.Number
	o.Metrics.Proposal(action)
	_ = o.Events.Emit(telemetry.Event{
		Kind: telemetry.KindProposalReconciled,
		Data: map[string]any{"action": action, "number": pr.Number, "branch": st.branch},
	})
	o.logger().Info("proposal "+action, slog.Int("number", pr.Number), slog.String("branch", st.branch))
	return nil
}
