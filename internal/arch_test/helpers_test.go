package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	modulePath  = "github.com/papapumpkin/comet"
	internalPfx = modulePath + "/internal/"
)

// repoRoot returns the directory holding go.mod, searched upward from this file.
func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller")
	for dir := filepath.Dir(file); ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("no go.mod above %s", file)
		}
		dir = parent
	}
}

func internalDirPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(repoRoot(t), "internal")
}

// internalPackages lists the directories under internal/ that hold Go
// sources, arch_test excluded.
func internalPackages(t *testing.T) []string {
	t.Helper()
	dir := internalDirPath(t)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var pkgs []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "arch_test" {
			continue
		}
		if len(goFilesIn(t, filepath.Join(dir, e.Name()))) > 0 {
			pkgs = append(pkgs, e.Name())
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

// goFilesIn returns the non-test .go files of dir.
func goFilesIn(t *testing.T, dir string) []string {
	t.Helper()
	src, _ := splitGoFiles(t, dir)
	return src
}

// testFilesIn returns the _test.go files of dir.
func testFilesIn(t *testing.T, dir string) []string {
	t.Helper()
	_, tests := splitGoFiles(t, dir)
	return tests
}

func splitGoFiles(t *testing.T, dir string) (src, tests []string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir() || !strings.HasSuffix(name, ".go"):
		case strings.HasSuffix(name, "_test.go"):
			tests = append(tests, filepath.Join(dir, name))
		default:
			src = append(src, filepath.Join(dir, name))
		}
	}
	sort.Strings(src)
	sort.Strings(tests)
	return src, tests
}

func parseGoFile(t *testing.T, fset *token.FileSet, path string, mode parser.Mode) *ast.File {
	t.Helper()
	f, err := parser.ParseFile(fset, path, nil, mode)
	require.NoError(t, err, "parsing %s", path)
	return f
}

// importsOf returns the internal packages imported by the sources of pkgDir,
// named by their first path element under internal/.
func importsOf(t *testing.T, pkgDir string) []string {
	t.Helper()
	fset := token.NewFileSet()
	seen := make(map[string]bool)
	for _, path := range goFilesIn(t, pkgDir) {
		for _, imp := range parseGoFile(t, fset, path, parser.ImportsOnly).Imports {
			rel, ok := strings.CutPrefix(strings.Trim(imp.Path.Value, `"`), internalPfx)
			if !ok {
				continue
			}
			rel, _, _ = strings.Cut(rel, "/")
			seen[rel] = true
		}
	}
	out := make([]string, 0, len(seen))
	for pkg := range seen {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// lineCount counts lines the way an editor does: a missing trailing
// newline still ends a line.
func lineCount(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	n := strings.Count(string(data), "\n")
	if len(data) > 0 && data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// interfaceDecl is an interface type found in a source file.
type interfaceDecl struct {
	Name    string
	Pkg     string
	File    string
	Methods []string
}

func interfaceDecls(t *testing.T, path string) []interfaceDecl {
	t.Helper()
	f := parseGoFile(t, token.NewFileSet(), path, 0)

	var decls []interfaceDecl
	for _, d := range f.Decls {
		gd, ok := d.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, s := range gd.Specs {
			ts := s.(*ast.TypeSpec)
			iface, ok := ts.Type.(*ast.InterfaceType)
			if !ok {
				continue
			}
			decl := interfaceDecl{Name: ts.Name.Name, Pkg: f.Name.Name, File: path}
			for _, m := range iface.Methods.List {
				for _, name := range m.Names {
					decl.Methods = append(decl.Methods, name.Name)
				}
			}
			decls = append(decls, decl)
		}
	}
	return decls
}
