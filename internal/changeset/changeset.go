// Package changeset reads pending change descriptors and the pre-release
// marker from a workspace's .changeset directory.
package changeset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dir is the directory, relative to the workspace root, holding change descriptors.
const Dir = ".changeset"

// Release is one release intent inside a change descriptor.
type Release struct {
	Name string
	Type string
}

// Changeset is a pending change descriptor. The engine only cares whether
// Releases is empty; a "none" intent still counts as an entry.
type Changeset struct {
	ID       string
	Summary  string
	Releases []Release
}

// PreState is the active pre-release marker, read from pre.json.
type PreState struct {
	Mode string `json:"mode"`
	Tag  string `json:"tag"`
}

// InPreMode reports whether the workspace is currently producing prereleases.
// A nil PreState is not in pre mode.
func (p *PreState) InPreMode() bool {
	return p != nil && p.Mode == "pre"
}

// State is everything the entry controller needs to know about pending changes.
type State struct {
	Changesets []Changeset
	Pre        *PreState
}

// HasChangesets reports whether any change descriptor is pending.
func (s State) HasChangesets() bool {
	return len(s.Changesets) > 0
}

// HasNonEmpty reports whether at least one descriptor carries a release intent.
func (s State) HasNonEmpty() bool {
	for _, c := range s.Changesets {
		if len(c.Releases) > 0 {
			return true
		}
	}
	return false
}

// Read loads all change descriptors and the pre-release state under root.
// A missing .changeset directory yields an empty state.
func Read(root string) (State, error) {
	dir := filepath.Join(root, Dir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading %s: %w", dir, err)
	}

	var state State
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".md" || strings.EqualFold(name, "README.md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return State{}, fmt.Errorf("reading changeset %s: %w", name, err)
		}
		cs, err := Parse(strings.TrimSuffix(name, ".md"), data)
		if err != nil {
			return State{}, err
		}
		state.Changesets = append(state.Changesets, cs)
	}

	pre, err := readPreState(dir)
	if err != nil {
		return State{}, err
	}
	state.Pre = pre
	return state, nil
}

// Parse decodes a single change descriptor: a YAML frontmatter block mapping
// package names to bump types, followed by a free-form summary.
func Parse(id string, data []byte) (Changeset, error) {
	frontmatter, summary, err := splitFrontmatter(data)
	if err != nil {
		return Changeset{}, fmt.Errorf("changeset %s: %w", id, err)
	}

	var bumps map[string]string
	if err := yaml.Unmarshal(frontmatter, &bumps); err != nil {
		return Changeset{}, fmt.Errorf("changeset %s: parsing frontmatter: %w", id, err)
	}

	cs := Changeset{ID: id, Summary: strings.TrimSpace(string(summary))}
	for name, typ := range bumps {
		cs.Releases = append(cs.Releases, Release{Name: name, Type: typ})
	}
	sort.Slice(cs.Releases, func(i, j int) bool { return cs.Releases[i].Name < cs.Releases[j].Name })
	return cs, nil
}

// splitFrontmatter separates a "---" delimited header from the body.
func splitFrontmatter(data []byte) (front, body []byte, err error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, nil, errors.New("missing frontmatter")
	}
	rest := trimmed[len(delim):]
	end := bytes.Index(rest, []byte("\n"+delim))
	if end < 0 {
		return nil, nil, errors.New("unterminated frontmatter")
	}
	front = rest[:end]
	body = rest[end+1+len(delim):]
	return front, body, nil
}

func readPreState(dir string) (*PreState, error) {
	data, err := os.ReadFile(filepath.Join(dir, "pre.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pre.json: %w", err)
	}
	var pre PreState
	if err := json.Unmarshal(data, &pre); err != nil {
		return nil, fmt.Errorf("parsing pre.json: %w", err)
	}
	return &pre, nil
}
