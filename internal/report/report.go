// Package report writes the outcome of a run where CI can pick it up: as
// step outputs in the GitHub Actions output file, and as a TOML report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Package is a published package version.
type Package struct {
	Name    string `json:"name" toml:"name"`
	Version string `json:"version" toml:"version"`
}

// Outputs is what a run reports.
type Outputs struct {
	Mode              string    `toml:"mode"`
	HasChangesets     bool      `toml:"has_changesets"`
	Published         bool      `toml:"published"`
	PublishedPackages []Package `toml:"published_packages"`
	PullRequestNumber int       `toml:"pull_request_number,omitempty"`
	Releases          []string  `toml:"releases,omitempty"`
}

// Lines renders the step outputs as key=value lines in a fixed order.
// publishedPackages is a JSON array and is always present.
func (o Outputs) Lines() ([]string, error) {
	pkgs := o.PublishedPackages
	if pkgs == nil {
		pkgs = []Package{}
	}
	data, err := json.Marshal(pkgs)
	if err != nil {
		return nil, fmt.Errorf("encoding published packages: %w", err)
	}
	lines := []string{
		"published=" + strconv.FormatBool(o.Published),
		"publishedPackages=" + string(data),
		"hasChangesets=" + strconv.FormatBool(o.HasChangesets),
	}
	if o.PullRequestNumber > 0 {
		lines = append(lines, "pullRequestNumber="+strconv.Itoa(o.PullRequestNumber))
	}
	return lines, nil
}

// WriteGitHubOutput appends the step outputs to the file at path, which is
// normally $GITHUB_OUTPUT. An empty path is a no-op.
func WriteGitHubOutput(path string, o Outputs) error {
	if path == "" {
		return nil
	}
	lines, err := o.Lines()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("writing output file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	return nil
}

// WriteTOML writes o to path atomically (write temp + rename). An empty
// path is a no-op.
func WriteTOML(path string, o Outputs) error {
	if path == "" {
		return nil
	}
	data, err := toml.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp report file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming report file: %w", err)
	}
	return nil
}

// ReadTOML loads a report written by WriteTOML.
func ReadTOML(path string) (Outputs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Outputs{}, fmt.Errorf("reading report file: %w", err)
	}
	var o Outputs
	if err := toml.Unmarshal(data, &o); err != nil {
		return Outputs{}, fmt.Errorf("parsing report file: %w", err)
	}
	return o, nil
}
