package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func names(pkgs []Package) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Name
	}
	return out
}

func TestFSReader_SinglePackage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"solo","version":"1.4.0"}`)

	pkgs, err := FSReader{}.Read(dir)
	require.NoError(t, err)

	assert.Equal(t, ToolRoot, pkgs.Tool)
	assert.False(t, pkgs.Multi())
	require.Len(t, pkgs.Packages, 1)
	assert.Equal(t, Package{Name: "solo", Version: "1.4.0", Dir: dir}, pkgs.Packages[0])
}

func TestFSReader_NPMWorkspaces(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"mono","private":true,"workspaces":["packages/*","!packages/skip"]}`)
	writeFile(t, filepath.Join(dir, "packages", "b", "package.json"), `{"name":"@acme/b","version":"0.1.0"}`)
	writeFile(t, filepath.Join(dir, "packages", "a", "package.json"), `{"name":"a","version":"2.0.0","private":true}`)
	writeFile(t, filepath.Join(dir, "packages", "skip", "package.json"), `{"name":"skip","version":"0.0.1"}`)

	pkgs, err := FSReader{}.Read(dir)
	require.NoError(t, err)

	assert.Equal(t, ToolNPM, pkgs.Tool)
	assert.True(t, pkgs.Multi())
	assert.Equal(t, []string{"a", "@acme/b"}, names(pkgs.Packages))
	assert.True(t, pkgs.ByName()["a"].Private)
	assert.Equal(t, "0.1.0", pkgs.Versions()["@acme/b"])
}

func TestFSReader_YarnObjectWorkspaces(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"mono","workspaces":{"packages":["libs/**"]}}`)
	writeFile(t, filepath.Join(dir, "yarn.lock"), "")
	writeFile(t, filepath.Join(dir, "libs", "deep", "x", "package.json"), `{"name":"x","version":"1.0.0"}`)

	pkgs, err := FSReader{}.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, ToolYarn, pkgs.Tool)
	assert.Equal(t, []string{"x"}, names(pkgs.Packages))
}

func TestFSReader_PNPM(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"mono"}`)
	writeFile(t, filepath.Join(dir, "pnpm-workspace.yaml"), "packages:\n  - 'apps/*'\n")
	writeFile(t, filepath.Join(dir, "apps", "web", "package.json"), `{"name":"web","version":"3.1.0"}`)

	pkgs, err := FSReader{}.Read(dir)
	require.NoError(t, err)
	assert.Equal(t, ToolPNPM, pkgs.Tool)
	assert.Equal(t, []string{"web"}, names(pkgs.Packages))
}

func TestFSReader_DuplicateName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package.json"), `{"name":"mono","workspaces":["p/*"]}`)
	writeFile(t, filepath.Join(dir, "p", "one", "package.json"), `{"name":"dup","version":"1.0.0"}`)
	writeFile(t, filepath.Join(dir, "p", "two", "package.json"), `{"name":"dup","version":"1.0.0"}`)

	_, err := FSReader{}.Read(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found twice")
}

func TestFSReader_MissingRootManifest(t *testing.T) {
	t.Parallel()

	_, err := FSReader{}.Read(t.TempDir())
	assert.Error(t, err)
}

func TestChanged(t *testing.T) {
	t.Parallel()

	before := map[string]string{"a": "1.0.0", "b": "2.0.0", "c": "0.1.0"}
	after := &Packages{Tool: ToolNPM, Packages: []Package{
		{Name: "a", Version: "1.1.0"},
		{Name: "b", Version: "2.0.0"},
		{Name: "c", Version: "0.2.0"},
		{Name: "d", Version: "0.0.1"},
	}}

	assert.Equal(t, []string{"a", "c", "d"}, names(Changed(before, after)))
}
