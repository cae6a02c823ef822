package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/papapumpkin/comet/internal/ui"
)

// setupSignalContext returns a context that is canceled on SIGINT or SIGTERM.
func setupSignalContext(printer *ui.Printer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			printer.Warn("interrupted, stopping after the current step")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// resolveWorkDir returns an absolute checkout path, defaulting to the cwd.
func resolveWorkDir(workDir string) (string, error) {
	if workDir != "" && workDir != "." {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return "", fmt.Errorf("resolving work dir %s: %w", workDir, err)
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}
