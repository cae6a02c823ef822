// Package git drives the git CLI for the operations a release run needs:
// branch switching, hard reset, commit, push, and tag push.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Facade abstracts the git operations used by the orchestrators.
// *CLI satisfies this interface.
type Facade interface {
	// HeadSHA returns the commit currently checked out.
	HeadSHA(ctx context.Context) (string, error)
	// SwitchToMaybeExistingBranch checks out branch, creating it from HEAD if
	// it does not exist locally or on the remote.
	SwitchToMaybeExistingBranch(ctx context.Context, branch string) error
	// Reset hard-resets the current branch to ref.
	Reset(ctx context.Context, ref string) error
	// IsClean reports whether the working tree has no changes.
	IsClean(ctx context.Context) (bool, error)
	// CommitAll stages every change and commits it with message.
	CommitAll(ctx context.Context, message string) error
	// Push pushes HEAD to branch on origin.
	Push(ctx context.Context, branch string, force bool) error
	// PushTags pushes all local tags to origin.
	PushTags(ctx context.Context) error
}

// Bot identity used when SetupUser configures the repository.
const (
	BotName  = "github-actions[bot]"
	BotEmail = "41898282+github-actions[bot]@users.noreply.github.com"
)

// CLI implements Facade using git CLI commands.
type CLI struct {
	Dir    string
	Remote string // defaults to "origin"
}

// NewCLI verifies git is available and dir is inside a repository.
func NewCLI(ctx context.Context, dir string) (*CLI, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git not available: %w", err)
	}
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--git-dir")
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("not a git repository: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return &CLI{Dir: dir, Remote: "origin"}, nil
}

func (g *CLI) remote() string {
	if g.Remote == "" {
		return "origin"
	}
	return g.Remote
}

// run executes a git command and returns its trimmed stdout. The error
// includes the command line and stderr.
func (g *CLI) run(ctx context.Context, args ...string) (string, error) {
	stdout, stderr, err := g.exec(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}

func (g *CLI) exec(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err = cmd.Run()
	return out.String(), errOut.String(), err
}

// SetupUser configures the bot identity for commits made by the run.
func (g *CLI) SetupUser(ctx context.Context) error {
	if _, err := g.run(ctx, "config", "user.name", BotName); err != nil {
		return err
	}
	_, err := g.run(ctx, "config", "user.email", BotEmail)
	return err
}

// HeadSHA returns the full SHA of HEAD.
func (g *CLI) HeadSHA(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}

// SwitchToMaybeExistingBranch checks out the branch if git can resolve it
// (locally or via a remote-tracking branch), or creates it from HEAD.
func (g *CLI) SwitchToMaybeExistingBranch(ctx context.Context, branch string) error {
	_, stderr, err := g.exec(ctx, "checkout", branch)
	if err == nil {
		return nil
	}
	if !isUnknownRef(stderr) {
		return fmt.Errorf("git checkout %s: %w: %s", branch, err, strings.TrimSpace(stderr))
	}
	if _, err := g.run(ctx, "checkout", "-b", branch); err != nil {
		return err
	}
	return nil
}

// isUnknownRef reports whether checkout failed because the ref does not exist.
func isUnknownRef(stderr string) bool {
	return strings.Contains(stderr, "did not match any file(s) known to git") ||
		strings.Contains(stderr, "invalid reference")
}

// Reset hard-resets the current branch to ref.
func (g *CLI) Reset(ctx context.Context, ref string) error {
	_, err := g.run(ctx, "reset", "--hard", ref)
	return err
}

// IsClean reports whether `git status --porcelain` is empty.
func (g *CLI) IsClean(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// CommitAll stages all changes and creates a commit.
func (g *CLI) CommitAll(ctx context.Context, message string) error {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return err
	}
	_, err := g.run(ctx, "commit", "-m", message)
	return err
}

// Push pushes HEAD to the named branch on the remote.
func (g *CLI) Push(ctx context.Context, branch string, force bool) error {
	args := []string{"push", g.remote(), "HEAD:" + branch}
	if force {
		args = append(args, "--force")
	}
	_, err := g.run(ctx, args...)
	return err
}

// PushTags pushes every local tag to the remote.
func (g *CLI) PushTags(ctx context.Context) error {
	_, err := g.run(ctx, "push", g.remote(), "--tags")
	return err
}

// CurrentBranch returns the name of the currently checked-out branch.
func (g *CLI) CurrentBranch(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}
