package proposal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/comet/internal/changelog"
	"github.com/papapumpkin/comet/internal/fault"
	"github.com/papapumpkin/comet/internal/host"
	"github.com/papapumpkin/comet/internal/tool"
	"github.com/papapumpkin/comet/internal/workspace"
)

type fakeGit struct {
	mu      sync.Mutex
	calls   []string
	head    string
	clean   bool
	pushErr error
}

func (g *fakeGit) record(s string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, s)
}

func (g *fakeGit) HeadSHA(context.Context) (string, error) {
	g.record("head")
	return g.head, nil
}

func (g *fakeGit) SwitchToMaybeExistingBranch(_ context.Context, branch string) error {
	g.record("switch " + branch)
	return nil
}

func (g *fakeGit) Reset(_ context.Context, ref string) error {
	g.record("reset " + ref)
	return nil
}

func (g *fakeGit) IsClean(context.Context) (bool, error) {
	g.record("status")
	return g.clean, nil
}

func (g *fakeGit) CommitAll(_ context.Context, msg string) error {
	g.record("commit " + msg)
	return nil
}

func (g *fakeGit) Push(_ context.Context, branch string, force bool) error {
	if force {
		g.record("push --force " + branch)
	} else {
		g.record("push " + branch)
	}
	return g.pushErr
}

func (g *fakeGit) PushTags(context.Context) error {
	g.record("push --tags")
	return nil
}

// fakeWorkspace serves the "before" packages until the version tool runs,
// then the "after" packages.
type fakeWorkspace struct {
	before, after *workspace.Packages
	bumped        bool
}

func (w *fakeWorkspace) Read(string) (*workspace.Packages, error) {
	if w.bumped {
		return w.after, nil
	}
	return w.before, nil
}

type fakeTool struct {
	ws       *fakeWorkspace
	commands []string
	err      error
}

func (f *fakeTool) Run(_ context.Context, cmd string) (tool.Result, error) {
	f.commands = append(f.commands, cmd)
	if f.err != nil {
		return tool.Result{ExitCode: 1}, f.err
	}
	f.ws.bumped = true
	return tool.Result{}, nil
}

// fakeHost keeps proposals in memory the way a hosting platform would.
type fakeHost struct {
	mu        sync.Mutex
	proposals []host.Proposal
	next      int
	creates   int
	updates   int
}

func (h *fakeHost) Kind() host.Kind { return host.KindPrimary }

func (h *fakeHost) SearchOpenProposals(_ context.Context, base, head string) ([]host.Proposal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []host.Proposal
	for _, p := range h.proposals {
		if p.Base == base && p.Head == head {
			out = append(out, p)
		}
	}
	return out, nil
}

func (h *fakeHost) CreateProposal(_ context.Context, np host.NewProposal) (*host.Proposal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.creates++
	p := host.Proposal{Number: h.next, Title: np.Title, Body: np.Body, Base: np.Base, Head: np.Head}
	h.proposals = append(h.proposals, p)
	return &p, nil
}

func (h *fakeHost) UpdateProposal(_ context.Context, number int, title, body string) (*host.Proposal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates++
	for i := range h.proposals {
		if h.proposals[i].Number == number {
			h.proposals[i].Title = title
			h.proposals[i].Body = body
			p := h.proposals[i]
			return &p, nil
		}
	}
	return nil, fault.API("update proposal", 404, "Not Found", "", nil)
}

func (h *fakeHost) CanListReleases() bool { return false }

func (h *fakeHost) ListReleases(context.Context) ([]host.Release, error) {
	return nil, host.ErrUnsupported
}

func (h *fakeHost) CreateRelease(context.Context, host.NewRelease) (*host.Release, error) {
	return nil, errors.New("not used")
}

func writeChangelog(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, changelog.FileName), []byte(content), 0o644))
}
