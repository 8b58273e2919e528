package npm

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketnode/core/internal/ports"
)

// lineBuffer captures emitted output for assertions.
type lineBuffer struct {
	stdout, stderr bytes.Buffer
}

func (b *lineBuffer) Emit(stream ports.Stream, data []byte) {
	if stream == ports.Stdout {
		b.stdout.Write(data)
	} else {
		b.stderr.Write(data)
	}
}

func TestManagerInstallIdempotent(t *testing.T) {
	reg := newFakeRegistry(t, []fakePackage{
		{
			name:     "left-pad",
			versions: map[string]map[string]string{"1.3.0": {"right-pad": "^1.0.0"}},
		},
		{
			name:     "right-pad",
			versions: map[string]map[string]string{"1.0.5": nil},
		},
	})
	m := reg.manager(t)

	dir := t.TempDir()
	require.NoError(t, (&PackageJSON{
		Name:         "demo",
		Version:      "1.0.0",
		Dependencies: map[string]string{"left-pad": "^1.0.0"},
	}).Save(dir))

	var out lineBuffer
	code := m.Install(context.Background(), dir, false, &out)
	require.Equal(t, 0, code, out.stderr.String())

	first, err := os.ReadFile(filepath.Join(dir, LockfileName))
	require.NoError(t, err)

	lf, err := ReadLockfile(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, lf.LockfileVersion)
	assert.Equal(t, "1.3.0", lf.Dependencies["left-pad"].Version)
	assert.Equal(t, "1.0.5", lf.Dependencies["right-pad"].Version)

	// Second install: identical lockfile bytes, zero new downloads.
	downloads := reg.downloads.Load()
	code = m.Install(context.Background(), dir, false, &out)
	require.Equal(t, 0, code)

	second, err := os.ReadFile(filepath.Join(dir, LockfileName))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, downloads, reg.downloads.Load())
}

func TestManagerAddRecordsDependency(t *testing.T) {
	reg := newFakeRegistry(t, []fakePackage{
		{name: "chalk-lite", versions: map[string]map[string]string{"5.0.1": nil}},
	})
	m := reg.manager(t)

	dir := t.TempDir()
	var out lineBuffer
	code := m.Add(context.Background(), dir, []string{"chalk-lite"}, false, &out)
	require.Equal(t, 0, code, out.stderr.String())

	pkg, err := LoadPackageJSON(dir)
	require.NoError(t, err)
	assert.Equal(t, "^5.0.1", pkg.Dependencies["chalk-lite"])

	_, err = os.Stat(filepath.Join(dir, "node_modules", "chalk-lite", "index.js"))
	assert.NoError(t, err)
}

func TestManagerAddDev(t *testing.T) {
	reg := newFakeRegistry(t, []fakePackage{
		{name: "jest-lite", versions: map[string]map[string]string{"29.0.0": nil}},
	})
	m := reg.manager(t)

	dir := t.TempDir()
	var out lineBuffer
	code := m.Add(context.Background(), dir, []string{"jest-lite"}, true, &out)
	require.Equal(t, 0, code)

	pkg, err := LoadPackageJSON(dir)
	require.NoError(t, err)
	assert.Empty(t, pkg.Dependencies)
	assert.Equal(t, "^29.0.0", pkg.DevDependencies["jest-lite"])
}

func TestManagerUninstall(t *testing.T) {
	reg := newFakeRegistry(t, []fakePackage{
		{name: "left-pad", versions: map[string]map[string]string{"1.3.0": nil}},
	})
	m := reg.manager(t)

	dir := t.TempDir()
	var out lineBuffer
	require.Equal(t, 0, m.Add(context.Background(), dir, []string{"left-pad"}, false, &out))
	require.DirExists(t, filepath.Join(dir, "node_modules", "left-pad"))

	code := m.Uninstall(context.Background(), dir, []string{"left-pad"}, &out)
	require.Equal(t, 0, code)

	assert.NoDirExists(t, filepath.Join(dir, "node_modules", "left-pad"))
	pkg, err := LoadPackageJSON(dir)
	require.NoError(t, err)
	assert.Empty(t, pkg.Dependencies)

	lf, err := ReadLockfile(dir)
	require.NoError(t, err)
	assert.Empty(t, lf.Dependencies)
}

func TestManagerCI(t *testing.T) {
	reg := newFakeRegistry(t, []fakePackage{
		{name: "left-pad", versions: map[string]map[string]string{"1.3.0": nil}},
	})
	m := reg.manager(t)

	dir := t.TempDir()
	var out lineBuffer
	require.Equal(t, 0, m.Add(context.Background(), dir, []string{"left-pad"}, false, &out))

	// Poison node_modules; ci must rebuild it from the lockfile.
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "node_modules", "left-pad", "package.json"),
		[]byte(`{"name":"left-pad","version":"0.0.0"}`), 0o644))

	code := m.CI(context.Background(), dir, &out)
	require.Equal(t, 0, code, out.stderr.String())

	pkg, err := LoadPackageJSON(filepath.Join(dir, "node_modules", "left-pad"))
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", pkg.Version)
}

func TestManagerInit(t *testing.T) {
	reg := newFakeRegistry(t, nil)
	m := reg.manager(t)

	dir := t.TempDir()
	var out lineBuffer
	code := m.Init(dir, &out)
	require.Equal(t, 0, code)

	pkg, err := LoadPackageJSON(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), pkg.Name)
	assert.Equal(t, "1.0.0", pkg.Version)

	// A second init refuses to clobber.
	assert.Equal(t, 1, m.Init(dir, &out))
}

func TestManagerLs(t *testing.T) {
	reg := newFakeRegistry(t, []fakePackage{
		{name: "left-pad", versions: map[string]map[string]string{"1.3.0": nil}},
	})
	m := reg.manager(t)

	dir := t.TempDir()
	var out lineBuffer
	require.Equal(t, 0, m.Add(context.Background(), dir, []string{"left-pad"}, false, &out))

	out.stdout.Reset()
	code := m.Ls(dir, &out)
	require.Equal(t, 0, code)
	assert.Contains(t, out.stdout.String(), "left-pad@1.3.0")
}

func TestManagerInstallMissingManifest(t *testing.T) {
	reg := newFakeRegistry(t, nil)
	m := reg.manager(t)

	var out lineBuffer
	code := m.Install(context.Background(), t.TempDir(), false, &out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.stderr.String(), "no package.json")
}
