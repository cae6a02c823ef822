package proposal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/comet/internal/changelog"
	"github.com/papapumpkin/comet/internal/changeset"
	"github.com/papapumpkin/comet/internal/fault"
	"github.com/papapumpkin/comet/internal/host"
	"github.com/papapumpkin/comet/internal/workspace"
)


type fixture struct {
	git  *fakeGit
	ws   *fakeWorkspace
	tool *fakeTool
	host *fakeHost
	orch *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	dirA := filepath.Join(root, "packages", "a")
	dirB := filepath.Join(root, "packages", "b")
	dirC := filepath.Join(root, "packages", "c")
	writeChangelog(t, dirA, "# pkg-a\n\n## 1.0.1\n\n### Patch Changes\n\n- fix a\n\n## 1.0.0\n\n- initial\n")
	writeChangelog(t, dirB, "# pkg-b\n\n## 3.0.0\n\n### Major Changes\n\n- break b\n")
	writeChangelog(t, dirC, "# pkg-c\n\n## 0.1.0\n")

	ws := &fakeWorkspace{
		before: &workspace.Packages{Tool: workspace.ToolPNPM, Packages: []workspace.Package{
			{Name: "pkg-a", Version: "1.0.0", Dir: dirA},
			{Name: "pkg-b", Version: "2.4.0", Dir: dirB},
			{Name: "pkg-c", Version: "0.1.0", Dir: dirC},
		}},
		after: &workspace.Packages{Tool: workspace.ToolPNPM, Packages: []workspace.Package{
			{Name: "pkg-a", Version: "1.0.1", Dir: dirA},
			{Name: "pkg-b", Version: "3.0.0", Dir: dirB},
			{Name: "pkg-c", Version: "0.1.0", Dir: dirC},
		}},
	}
	f := &fixture{
		git:  &fakeGit{head: "abc123"},
		ws:   ws,
		tool: &fakeTool{ws: ws},
		host: &fakeHost{},
	}
	f.orch = &Orchestrator{Git: f.git, Packages: f.ws, Tool: f.tool, Host: f.host, Dir: root}
	return f
}

func TestOrchestrator_CreatesProposal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.orch.Run(context.Background(), Options{Base: "main", VersionCommand: "changeset version", HasPublish: true})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, 1, res.Number)
	assert.Equal(t, "changeset-release/main", res.Branch)
	require.Len(t, res.Changed, 2)
	assert.Equal(t, []string{"changeset version"}, f.tool.commands)
	assert.Equal(t, []string{
		"head",
		"switch changeset-release/main",
		"reset abc123",
		"status",
		"commit Version Packages",
		"push --force changeset-release/main",
	}, f.git.calls)

	require.Len(t, f.host.proposals, 1)
	pr := f.host.proposals[0]
	assert.Equal(t, "Version Packages", pr.Title)
	assert.Equal(t, "main", pr.Base)
	assert.Equal(t, "changeset-release/main", pr.Head)
	// Major bump sorts before patch bump.
	assert.Less(t, strings.Index(pr.Body, "## pkg-b@3.0.0"), strings.Index(pr.Body, "## pkg-a@1.0.1"))
	assert.Contains(t, pr.Body, "- break b")
	assert.NotContains(t, pr.Body, "pkg-c")
}

func TestOrchestrator_IdempotentReconciliation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	opts := Options{Base: "main", VersionCommand: "changeset version"}

	first, err := f.orch.Run(context.Background(), opts)
	require.NoError(t, err)
	f.ws.bumped = false
	second, err := f.orch.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Number, second.Number)
	open, err := f.host.SearchOpenProposals(context.Background(), "main", "changeset-release/main")
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.Equal(t, 1, f.host.creates)
	assert.Equal(t, 1, f.host.updates)
}

func TestOrchestrator_UpdatesFirstOfSeveralMatches(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.host.proposals = []host.Proposal{
		{Number: 40, Base: "main", Head: "changeset-release/main"},
		{Number: 41, Base: "main", Head: "changeset-release/main"},
	}
	f.host.next = 41

	res, err := f.orch.Run(context.Background(), Options{Base: "main", VersionCommand: "v"})
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, 40, res.Number)
	assert.Equal(t, 0, f.host.creates)
	assert.NotEmpty(t, f.host.proposals[0].Body)
	assert.Empty(t, f.host.proposals[1].Body)
}

func TestOrchestrator_PreModeSuffixes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	pre := &changeset.PreState{Mode: "pre", Tag: "beta"}

	res, err := f.orch.Run(context.Background(), Options{
		Base: "next", VersionCommand: "v", PreState: pre,
		Title: "Release", CommitMessage: "chore: release",
	})
	require.NoError(t, err)

	assert.Equal(t, "Release (beta)", res.Title)
	assert.Equal(t, "Release (beta)", f.host.proposals[0].Title)
	assert.Contains(t, f.git.calls, "commit chore: release (beta)")
	assert.Contains(t, res.Body, "**pre mode**")
}

func TestOrchestrator_CleanTreeSkipsCommitButPushes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.git.clean = true

	_, err := f.orch.Run(context.Background(), Options{Base: "main", BaseSHA: "def456", VersionCommand: "v"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"switch changeset-release/main",
		"reset def456",
		"status",
		"push --force changeset-release/main",
	}, f.git.calls)
}

func TestOrchestrator_ToolFailureAborts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.tool.err = fault.ToolFailed("changeset", errors.New("exited with code 1"))

	_, err := f.orch.Run(context.Background(), Options{Base: "main", VersionCommand: "changeset version"})

	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindToolFailed))
	assert.Contains(t, err.Error(), "run-version-tool")
	assert.NotContains(t, f.git.calls, "push --force changeset-release/main")
	assert.Empty(t, f.host.proposals)
}

func TestOrchestrator_MissingChangelogSectionIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	writeChangelog(t, f.ws.after.Packages[0].Dir, "# pkg-a\n\n## 1.0.0\n\n- initial\n")

	_, err := f.orch.Run(context.Background(), Options{Base: "main", VersionCommand: "v"})

	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindNotFound))
	assert.ErrorIs(t, err, changelog.ErrNoSection)
	assert.Contains(t, err.Error(), "pkg-a@1.0.1")
	assert.Empty(t, f.host.proposals)
}

func TestOrchestrator_MissingChangelogFileIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.ws.after.Packages[1].Dir, changelog.FileName)))

	_, err := f.orch.Run(context.Background(), Options{Base: "main", VersionCommand: "v"})

	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindNotFound))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOrchestrator_IgnoredPackagesLeftOutOfBody(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.ws.after.Packages[1].Dir, changelog.FileName)))

	res, err := f.orch.Run(context.Background(), Options{Base: "main", VersionCommand: "v", Ignore: []string{"pkg-b"}})
	require.NoError(t, err)

	assert.Len(t, res.Changed, 2)
	assert.NotContains(t, res.Body, "pkg-b")
	assert.Contains(t, res.Body, "## pkg-a@1.0.1")
}

func TestOrchestrator_DryRunMakesNoWrites(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.orch.Run(context.Background(), Options{Base: "main", VersionCommand: "v", DryRun: true})
	require.NoError(t, err)

	assert.Contains(t, res.Body, "## pkg-b@3.0.0")
	assert.Zero(t, res.Number)
	assert.Empty(t, f.host.proposals)
	for _, c := range f.git.calls {
		assert.False(t, strings.HasPrefix(c, "commit") || strings.HasPrefix(c, "push"), c)
	}
}

func TestOrchestrator_PushFailurePropagates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.git.pushErr = errors.New("remote rejected")

	_, err := f.orch.Run(context.Background(), Options{Base: "main", VersionCommand: "v"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "push: remote rejected")
	assert.Empty(t, f.host.proposals)
}

func TestGatherEntries_StableOrder(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	var pkgs []workspace.Package
	for _, p := range []struct{ name, level string }{
		{"p1", "Patch"}, {"p2", "Minor"}, {"p3", "Patch"}, {"p4", "Minor"}, {"p5", "Major"},
	} {
		dir := filepath.Join(root, p.name)
		writeChangelog(t, dir, "# "+p.name+"\n\n## 1.0.0\n\n### "+p.level+" Changes\n\n- x\n")
		pkgs = append(pkgs, workspace.Package{Name: p.name, Version: "1.0.0", Dir: dir})
	}

	entries, err := gatherEntries(pkgs, nil)
	require.NoError(t, err)

	var order []string
	for _, e := range entries {
		order = append(order, strings.TrimPrefix(strings.TrimSuffix(e.Header, "@1.0.0"), "## "))
	}
	assert.Equal(t, []string{"p5", "p2", "p4", "p1", "p3"}, order)
}

func TestWithPreTag(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Version Packages", WithPreTag("Version Packages", nil))
	assert.Equal(t, "Version Packages (rc)", WithPreTag("Version Packages", &changeset.PreState{Mode: "pre", Tag: "rc"}))
	assert.Equal(t, "changeset-release/main", VersionBranch("main"))
}
