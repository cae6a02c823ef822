package publish

import (
	"context"
	"fmt"
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
	pushedTags bool
}

func (g *fakeGit) HeadSHA(context.Context) (string, error)                   { return "abc", nil }
func (g *fakeGit) SwitchToMaybeExistingBranch(context.Context, string) error { return nil }
func (g *fakeGit) Reset(context.Context, string) error                       { return nil }
func (g *fakeGit) IsClean(context.Context) (bool, error)                     { return true, nil }
func (g *fakeGit) CommitAll(context.Context, string) error                   { return nil }
func (g *fakeGit) Push(context.Context, string, bool) error                  { return nil }

func (g *fakeGit) PushTags(context.Context) error {
	g.pushedTags = true
	return nil
}

type staticWorkspace struct {
	pkgs  *workspace.Packages
	reads int
}

func (w *staticWorkspace) Read(string) (*workspace.Packages, error) {
	w.reads++
	return w.pkgs, nil
}

type fakeTool struct {
	stdout string
	err    error
}

func (f *fakeTool) Run(context.Context, string) (tool.Result, error) {
	if f.err != nil {
		return tool.Result{ExitCode: 1}, f.err
	}
	return tool.Result{Stdout: f.stdout}, nil
}

type fakeHost struct {
	mu       sync.Mutex
	canList  bool
	existing []host.Release
	created  []host.NewRelease
	failTags map[string]bool
}

func (h *fakeHost) Kind() host.Kind {
	if h.canList {
		return host.KindAlternate
	}
	return host.KindPrimary
}

func (h *fakeHost) SearchOpenProposals(context.Context, string, string) ([]host.Proposal, error) {
	return nil, nil
}

func (h *fakeHost) CreateProposal(context.Context, host.NewProposal) (*host.Proposal, error) {
	return nil, fmt.Errorf("not used")
}

func (h *fakeHost) UpdateProposal(context.Context, int, string, string) (*host.Proposal, error) {
	return nil, fmt.Errorf("not used")
}

func (h *fakeHost) CanListReleases() bool { return h.canList }

func (h *fakeHost) ListReleases(context.Context) ([]host.Release, error) {
	if !h.canList {
		return nil, host.ErrUnsupported
	}
	return h.existing, nil
}

func (h *fakeHost) CreateRelease(_ context.Context, nr host.NewRelease) (*host.Release, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failTags[nr.TagName] {
		return nil, fault.API("create release", 422, "Unprocessable Entity", "https://api.example.com/repos/o/r/releases", nil)
	}
	h.created = append(h.created, nr)
	return &host.Release{ID: int64(len(h.created)), TagName: nr.TagName, Prerelease: nr.Prerelease}, nil
}

func (h *fakeHost) createdTags() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var tags []string
	for _, r := range h.created {
		tags = append(tags, r.TagName)
	}
	return tags
}

func writeChangelog(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, changelog.FileName), []byte(content), 0o644))
}
