package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/papapumpkin/comet/internal/config"
	"github.com/papapumpkin/comet/internal/controller"
	"github.com/papapumpkin/comet/internal/git"
	"github.com/papapumpkin/comet/internal/host"
	"github.com/papapumpkin/comet/internal/metrics"
	"github.com/papapumpkin/comet/internal/proposal"
	"github.com/papapumpkin/comet/internal/publish"
	"github.com/papapumpkin/comet/internal/report"
	"github.com/papapumpkin/comet/internal/telemetry"
	"github.com/papapumpkin/comet/internal/tool"
	"github.com/papapumpkin/comet/internal/ui"
	"github.com/papapumpkin/comet/internal/workspace"
)

// session holds everything a command wires together for one run.
type session struct {
	cfg     config.Config
	dir     string
	logger  *slog.Logger
	printer *ui.Printer
	git     *git.CLI
	host    host.Client
	tool    *tool.Exec
	events  *telemetry.Emitter
	metrics *metrics.Recorder
}

// openSession loads and validates configuration, then builds every
// collaborator. Nothing is written until validation has passed.
func openSession(ctx context.Context, printer *ui.Printer) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := setupLogger(cfg.LogLevel, cfg.Verbose)
	if err != nil {
		return nil, err
	}
	dir, err := resolveWorkDir(cfg.WorkDir)
	if err != nil {
		return nil, err
	}

	backend, err := host.ResolveBackend(cfg.APIURL, cfg.Token, cfg.Repository)
	if err != nil {
		return nil, err
	}
	rec := metrics.New()
	client, err := host.New(backend, host.Options{Metrics: rec, Logger: logger})
	if err != nil {
		return nil, err
	}

	g, err := git.NewCLI(ctx, dir)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		dir:     dir,
		logger:  logger,
		printer: printer,
		git:     g,
		host:    client,
		tool:    &tool.Exec{Dir: dir, Verbose: cfg.Verbose},
		metrics: rec,
	}
	if cfg.Verbose {
		s.tool.Stream = os.Stderr
	}
	if cfg.EventsFile != "" {
		if s.events, err = telemetry.NewEmitter(cfg.EventsFile); err != nil {
			return nil, err
		}
	}
	logger.Debug("session ready",
		slog.String("dir", dir),
		slog.String("backend", string(backend.Kind)),
		slog.String("repository", backend.FullName()))
	return s, nil
}

// prepareGit sets the bot identity when configured. Only the flows that
// commit or tag need it.
func (s *session) prepareGit(ctx context.Context) error {
	if !s.cfg.SetupGitUser {
		return nil
	}
	if err := s.git.SetupUser(ctx); err != nil {
		return fmt.Errorf("configuring git user: %w", err)
	}
	return nil
}

// base returns the branch the proposal targets: the configured branch, or
// the branch currently checked out.
func (s *session) base(ctx context.Context) (string, error) {
	if s.cfg.Branch != "" {
		return s.cfg.Branch, nil
	}
	branch, err := s.git.CurrentBranch(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving base branch: %w", err)
	}
	if branch == "" || branch == "HEAD" {
		return "", errors.New("cannot determine the base branch from a detached HEAD; set branch or COMET_BRANCH")
	}
	return branch, nil
}

func (s *session) versioner() *proposal.Orchestrator {
	return &proposal.Orchestrator{
		Git:      s.git,
		Packages: workspace.FSReader{},
		Tool:     s.tool,
		Host:     s.host,
		Dir:      s.dir,
		Logger:   s.logger,
		Events:   s.events,
		Metrics:  s.metrics,
	}
}

func (s *session) publisher() *publish.Orchestrator {
	return &publish.Orchestrator{
		Git:      s.git,
		Packages: workspace.FSReader{},
		Tool:     s.tool,
		Host:     s.host,
		Dir:      s.dir,
		Logger:   s.logger,
		Events:   s.events,
		Metrics:  s.metrics,
	}
}

// versionDefaults builds the version flow options from configuration. Base
// is left empty.
func (s *session) versionDefaults() proposal.Options {
	return proposal.Options{
		BaseSHA:        s.cfg.SHA,
		VersionCommand: s.cfg.VersionCommand,
		HasPublish:     s.cfg.HasPublish(),
		Title:          s.cfg.Title,
		CommitMessage:  s.cfg.CommitMessage,
		MaxBodySize:    s.cfg.MaxBodySize,
		Ignore:         s.cfg.Ignore,
	}
}

func (s *session) versionOptions(ctx context.Context) (proposal.Options, error) {
	base, err := s.base(ctx)
	if err != nil {
		return proposal.Options{}, err
	}
	opts := s.versionDefaults()
	opts.Base = base
	return opts, nil
}

func (s *session) publishOptions() publish.Options {
	opts := publish.Options{
		PublishCommand: s.cfg.PublishCommand,
		ReleaseMode:    publish.ReleaseMode(s.cfg.ReleaseMode),
		Join:           publish.JoinAbortOnFirst,
	}
	if s.cfg.CollectErrors {
		opts.Join = publish.JoinCollectAll
	}
	return opts
}

// controller wires both flows. The base branch is looked up only if the
// version flow is dispatched, so publishing works from a detached HEAD.
func (s *session) controller() (*controller.Controller, *lazyBase) {
	version := &lazyBase{inner: s.versioner(), resolve: s.base}
	return &controller.Controller{
		Dir:            s.dir,
		HasPublish:     s.cfg.HasPublish(),
		Version:        version,
		Publish:        s.publisher(),
		VersionOptions: s.versionDefaults(),
		PublishOptions: s.publishOptions(),
		Logger:         s.logger,
		Events:         s.events,
	}, version
}

// lazyBase fills in Options.Base when the version flow runs and remembers
// the version branch it targeted.
type lazyBase struct {
	inner   controller.Versioner
	resolve func(context.Context) (string, error)
	branch  string
}

func (l *lazyBase) Run(ctx context.Context, opts proposal.Options) (*proposal.Result, error) {
	if opts.Base == "" {
		base, err := l.resolve(ctx)
		if err != nil {
			return nil, err
		}
		opts.Base = base
	}
	l.branch = proposal.VersionBranch(opts.Base)
	return l.inner.Run(ctx, opts)
}

// finish records the outputs of a run and flushes metrics and events. It
// runs even when the flow failed so partial outcomes are still reported.
func (s *session) finish(out report.Outputs) error {
	var errs []error
	if err := report.WriteGitHubOutput(s.cfg.OutputFile, out); err != nil {
		errs = append(errs, err)
	}
	if s.cfg.ReportFile != "" {
		if err := report.WriteTOML(s.cfg.ReportFile, out); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, s.close())
	return errors.Join(errs...)
}

// close flushes metrics and closes the event stream.
func (s *session) close() error {
	var errs []error
	if err := s.metrics.WriteTextfile(s.cfg.MetricsFile); err != nil {
		errs = append(errs, err)
	}
	if err := s.events.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// printOutcome renders the outputs of a finished run.
func printOutcome(p *ui.Printer, out report.Outputs, branch string) {
	switch controller.Mode(out.Mode) {
	case controller.ModeVersion:
		p.Proposal(out.PullRequestNumber, branch)
	case controller.ModePublish:
		p.Published(out)
	}
}
