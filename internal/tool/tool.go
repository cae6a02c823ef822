// Package tool runs the external version and publish commands as subprocesses.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/papapumpkin/comet/internal/fault"
)

// Result is the captured outcome of a tool run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a configured command line. *Exec satisfies it.
type Runner interface {
	Run(ctx context.Context, commandLine string) (Result, error)
}

// Exec runs commands with os/exec in Dir. Output is captured and, when
// Stream is set, also copied to it as it arrives.
type Exec struct {
	Dir     string
	Env     []string // appended to os.Environ()
	Stream  io.Writer
	Verbose bool
}

// Split parses a command line into program and arguments using shell
// quoting rules. Environment variables are not expanded.
func Split(commandLine string) ([]string, error) {
	args, err := shellwords.Parse(commandLine)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", commandLine, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}

// Run executes commandLine and returns its output. A non-zero exit or a
// missing binary is reported as fault.KindToolFailed.
func (e *Exec) Run(ctx context.Context, commandLine string) (Result, error) {
	args, err := Split(commandLine)
	if err != nil {
		return Result{}, fault.ToolFailed(commandLine, err)
	}

	if e.Verbose {
		fmt.Fprintf(os.Stderr, "[tool] running: %s\n", strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), e.Env...)

	var stdout, stderr bytes.Buffer
	if e.Stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, e.Stream)
		cmd.Stderr = io.MultiWriter(&stderr, e.Stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	runErr := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, fault.ToolFailed(args[0], fmt.Errorf("exited with code %d: %w\nstderr: %s",
				res.ExitCode, runErr, strings.TrimSpace(res.Stderr)))
		}
		res.ExitCode = -1
		return res, fault.ToolFailed(args[0], runErr)
	}
	return res, nil
}
