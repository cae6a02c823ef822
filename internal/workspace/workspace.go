// Package workspace enumerates the packages of a JavaScript-style workspace
// and reports which workspace tool manages them.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Tool identifies the workspace layout.
type Tool string

const (
	// ToolRoot is a single-package repository: the root manifest is the only package.
	ToolRoot Tool = "root"
	ToolNPM  Tool = "npm"
	ToolYarn Tool = "yarn"
	ToolPNPM Tool = "pnpm"
)

// Package is one publishable unit of the workspace.
type Package struct {
	Name    string
	Version string
	Dir     string
	Private bool
}

// Packages is a snapshot of the workspace taken at one point in a run.
type Packages struct {
	Tool     Tool
	Root     Package
	Packages []Package
}

// Multi reports whether the workspace has a true multi-package layout.
func (p *Packages) Multi() bool {
	return p.Tool != ToolRoot
}

// ByName indexes the packages by name.
func (p *Packages) ByName() map[string]Package {
	m := make(map[string]Package, len(p.Packages))
	for _, pkg := range p.Packages {
		m[pkg.Name] = pkg
	}
	return m
}

// Versions maps each package name to its current version.
func (p *Packages) Versions() map[string]string {
	m := make(map[string]string, len(p.Packages))
	for _, pkg := range p.Packages {
		m[pkg.Name] = pkg.Version
	}
	return m
}

// Reader loads workspace packages. *FSReader satisfies it.
type Reader interface {
	Read(dir string) (*Packages, error)
}

// FSReader reads package manifests from the filesystem.
type FSReader struct{}

type manifest struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Private    bool            `json:"private"`
	Workspaces json.RawMessage `json:"workspaces"`
}

type pnpmWorkspace struct {
	Packages []string `yaml:"packages"`
}

// Read enumerates the packages under dir. Packages are returned in a stable
// order sorted by directory.
func (FSReader) Read(dir string) (*Packages, error) {
	rootMan, err := readManifest(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, err
	}
	root := Package{Name: rootMan.Name, Version: rootMan.Version, Dir: dir, Private: rootMan.Private}

	tool, globs, err := detectTool(dir, rootMan)
	if err != nil {
		return nil, err
	}
	if tool == ToolRoot {
		return &Packages{Tool: ToolRoot, Root: root, Packages: []Package{root}}, nil
	}

	dirs, err := expandGlobs(dir, globs)
	if err != nil {
		return nil, err
	}
	pkgs := make([]Package, 0, len(dirs))
	seen := make(map[string]string, len(dirs))
	for _, d := range dirs {
		m, err := readManifest(filepath.Join(d, "package.json"))
		if err != nil {
			return nil, err
		}
		if m.Name == "" {
			return nil, fmt.Errorf("package at %s has no name", d)
		}
		if prev, ok := seen[m.Name]; ok {
			return nil, fmt.Errorf("package %q found twice: %s and %s", m.Name, prev, d)
		}
		seen[m.Name] = d
		pkgs = append(pkgs, Package{Name: m.Name, Version: m.Version, Dir: d, Private: m.Private})
	}
	return &Packages{Tool: tool, Root: root, Packages: pkgs}, nil
}

// detectTool decides the layout from pnpm-workspace.yaml, lockfiles, and
// the root manifest's workspaces field.
func detectTool(dir string, root manifest) (Tool, []string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "pnpm-workspace.yaml"))
	switch {
	case err == nil:
		var ws pnpmWorkspace
		if err := yaml.Unmarshal(data, &ws); err != nil {
			return "", nil, fmt.Errorf("parsing pnpm-workspace.yaml: %w", err)
		}
		if len(ws.Packages) > 0 {
			return ToolPNPM, ws.Packages, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", nil, fmt.Errorf("reading pnpm-workspace.yaml: %w", err)
	}

	globs, err := workspaceGlobs(root.Workspaces)
	if err != nil {
		return "", nil, err
	}
	if len(globs) == 0 {
		return ToolRoot, nil, nil
	}
	if _, err := os.Stat(filepath.Join(dir, "yarn.lock")); err == nil {
		return ToolYarn, globs, nil
	}
	return ToolNPM, globs, nil
}

// workspaceGlobs accepts both the array form and the {"packages": [...]} form.
func workspaceGlobs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("parsing workspaces field: %w", err)
	}
	return obj.Packages, nil
}

// expandGlobs resolves workspace globs to package directories. Patterns
// prefixed with "!" exclude matches.
func expandGlobs(dir string, globs []string) ([]string, error) {
	fsys := os.DirFS(dir)
	include := make(map[string]bool)
	var excludes []string
	for _, g := range globs {
		g = strings.TrimPrefix(strings.TrimSpace(g), "./")
		if neg, ok := strings.CutPrefix(g, "!"); ok {
			excludes = append(excludes, strings.TrimPrefix(neg, "./"))
			continue
		}
		matches, err := doublestar.Glob(fsys, strings.TrimSuffix(g, "/")+"/package.json")
		if err != nil {
			return nil, fmt.Errorf("expanding workspace glob %q: %w", g, err)
		}
		for _, m := range matches {
			if strings.Contains(m, "node_modules/") {
				continue
			}
			include[filepath.Dir(m)] = true
		}
	}

	var dirs []string
	for rel := range include {
		excluded := false
		for _, ex := range excludes {
			if ok, _ := doublestar.Match(strings.TrimSuffix(ex, "/"), rel); ok {
				excluded = true
				break
			}
		}
		if !excluded {
			dirs = append(dirs, filepath.Join(dir, filepath.FromSlash(rel)))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func readManifest(path string) (manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// Changed returns the packages in after whose version differs from before,
// in after's order. Packages absent from before count as changed.
func Changed(before map[string]string, after *Packages) []Package {
	var changed []Package
	for _, pkg := range after.Packages {
		if v, ok := before[pkg.Name]; !ok || v != pkg.Version {
			changed = append(changed, pkg)
		}
	}
	return changed
}
