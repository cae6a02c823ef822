// Package ui renders human-facing progress for a comet run on stderr. Under
// GitHub Actions it also emits workflow commands so errors are annotated and
// stage output folds into groups.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/papapumpkin/comet/internal/ansi"
	"github.com/papapumpkin/comet/internal/report"
)

// Printer writes styled lines to Out.
type Printer struct {
	Out     io.Writer // defaults to os.Stderr
	CI      bool      // emit ::group::, ::error:: and ::warning:: commands
	NoColor bool
}

// New returns a Printer on stderr, detecting GitHub Actions from the
// environment.
func New() *Printer {
	return &Printer{
		Out:     os.Stderr,
		CI:      os.Getenv("GITHUB_ACTIONS") == "true",
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

func (p *Printer) out() io.Writer {
	if p.Out == nil {
		return os.Stderr
	}
	return p.Out
}

func (p *Printer) paint(s string, codes ...string) string {
	if p.NoColor {
		return s
	}
	return ansi.Style(s, codes...)
}

// escapeData escapes a workflow command message.
func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}

func (p *Printer) Error(msg string) {
	if p.CI {
		fmt.Fprintf(p.out(), "::error::%s\n", escapeData(msg))
		return
	}
	fmt.Fprintf(p.out(), "%s%s\n", p.paint("error: ", ansi.Red, ansi.Bold), msg)
}

func (p *Printer) Warn(msg string) {
	if p.CI {
		fmt.Fprintf(p.out(), "::warning::%s\n", escapeData(msg))
		return
	}
	fmt.Fprintf(p.out(), "%s%s\n", p.paint("warning: ", ansi.Yellow, ansi.Bold), msg)
}

func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.out(), p.paint(msg, ansi.Dim))
}

// Group opens a foldable section and returns the func that closes it.
// Outside CI the title is printed as a heading and closing is a no-op.
func (p *Printer) Group(title string) func() {
	if p.CI {
		fmt.Fprintf(p.out(), "::group::%s\n", escapeData(title))
		return func() { fmt.Fprintln(p.out(), "::endgroup::") }
	}
	fmt.Fprintln(p.out(), p.paint("── "+title+" ──", ansi.Bold, ansi.Magenta))
	return func() {}
}

// Mode announces the flow the controller selected.
func (p *Printer) Mode(mode, reason string) {
	fmt.Fprintf(p.out(), "%s %s\n", p.paint("▶ "+mode, ansi.Cyan, ansi.Bold), p.paint(reason, ansi.Dim))
}

// Proposal reports the outcome of the version flow. A zero number means the
// proposal was composed but not written.
func (p *Printer) Proposal(number int, branch string) {
	if number == 0 {
		fmt.Fprintf(p.out(), "%s %s\n", p.paint("✓ proposal", ansi.Green, ansi.Bold), p.paint("not reconciled (dry run)", ansi.Dim))
		return
	}
	fmt.Fprintf(p.out(), "%s #%d from %s\n", p.paint("✓ proposal", ansi.Green, ansi.Bold), number, branch)
}

// Published lists what the publish flow released.
func (p *Printer) Published(o report.Outputs) {
	if !o.Published {
		fmt.Fprintln(p.out(), p.paint("nothing was published", ansi.Dim))
		return
	}
	fmt.Fprintf(p.out(), "%s %d package(s)\n", p.paint("✓ published", ansi.Green, ansi.Bold), len(o.PublishedPackages))
	for _, pkg := range o.PublishedPackages {
		fmt.Fprintf(p.out(), "  %s@%s\n", pkg.Name, pkg.Version)
	}
	for _, tag := range o.Releases {
		fmt.Fprintf(p.out(), "  %s %s\n", p.paint("release", ansi.Blue), tag)
	}
}

// StatusData is the read-only view printed by the status command.
type StatusData struct {
	Mode       string
	Reason     string
	Changesets int
	Empty      int
	HasPublish bool
	PreMode    bool
	PreTag     string
	Last       *report.Outputs // nil when no report exists
	LastPath   string
}

// Status prints the pending change state and the last recorded run.
func (p *Printer) Status(d StatusData) {
	w := p.out()
	fmt.Fprintln(w, p.paint("comet status", ansi.Bold, ansi.Cyan))
	fmt.Fprintf(w, "  changesets:  %d (%d empty)\n", d.Changesets, d.Empty)
	publish := "not configured"
	if d.HasPublish {
		publish = "configured"
	}
	fmt.Fprintf(w, "  publish:     %s\n", publish)
	if d.PreMode {
		fmt.Fprintf(w, "  pre mode:    %s\n", p.paint(d.PreTag, ansi.Yellow))
	}
	fmt.Fprintf(w, "  next run:    %s %s\n", p.paint(d.Mode, ansi.Bold), p.paint("("+d.Reason+")", ansi.Dim))

	if d.Last == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", p.paint("last run", ansi.Bold), p.paint(d.LastPath, ansi.Dim))
	fmt.Fprintf(w, "  mode:        %s\n", d.Last.Mode)
	if d.Last.PullRequestNumber > 0 {
		fmt.Fprintf(w, "  proposal:    #%d\n", d.Last.PullRequestNumber)
	}
	fmt.Fprintf(w, "  published:   %t (%d package(s))\n", d.Last.Published, len(d.Last.PublishedPackages))
}
