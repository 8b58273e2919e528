package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketnode/core/internal/ports"
)

type capture struct {
	stdout, stderr bytes.Buffer
}

func (c *capture) Emit(stream ports.Stream, data []byte) {
	if stream == ports.Stdout {
		c.stdout.Write(data)
	} else {
		c.stderr.Write(data)
	}
}

// run executes a builtin in dir and returns exit code plus captured output.
func run(t *testing.T, dir, name string, args ...string) (int, *capture) {
	t.Helper()
	c := &capture{}
	code, ok := Run(context.Background(), name, args, dir, c)
	require.True(t, ok, "expected %s to be a builtin", name)
	return code, c
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIsBuiltin(t *testing.T) {
	for _, name := range []string{
		"pwd", "echo", "ls", "cat", "mkdir", "rm", "rmdir", "touch", "cp",
		"mv", "which", "env", "whoami", "uname", "date", "head", "tail",
		"wc", "find", "dirname", "basename", "realpath", "clear", "true",
		"false",
	} {
		assert.True(t, IsBuiltin(name), name)
	}
	assert.False(t, IsBuiltin("git"))
}

func TestRunUnknown(t *testing.T) {
	_, ok := Run(context.Background(), "no-such-cmd", nil, t.TempDir(), ports.DiscardEmitter{})
	assert.False(t, ok)
}

func TestPwd(t *testing.T) {
	dir := t.TempDir()
	code, c := run(t, dir, "pwd")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, dir+"\n", c.stdout.String())
}

func TestEcho(t *testing.T) {
	code, c := run(t, t.TempDir(), "echo", "hello", "world")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "hello world\n", c.stdout.String())

	code, c = run(t, t.TempDir(), "echo", "-n", "raw")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "raw", c.stdout.String())
}

func TestLs(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b.txt", "")
	write(t, dir, "a.txt", "")
	write(t, dir, ".hidden", "")

	_, c := run(t, dir, "ls")
	assert.Equal(t, "a.txt\nb.txt\n", c.stdout.String())

	_, c = run(t, dir, "ls", "-a")
	assert.Equal(t, ".hidden\na.txt\nb.txt\n", c.stdout.String())

	_, c = run(t, dir, "ls", "-l")
	lines := strings.Split(strings.TrimSpace(c.stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^-rw-r--r-- +\d+ \d{4}-\d{2}-\d{2} \d{2}:\d{2} a\.txt$`, lines[0])
}

func TestLsMissing(t *testing.T) {
	code, c := run(t, t.TempDir(), "ls", "nope")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, c.stderr.String(), "no such file")
}

func TestCat(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "f.txt", "line1\nline2\n")

	code, c := run(t, dir, "cat", "f.txt")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "line1\nline2\n", c.stdout.String())

	_, c = run(t, dir, "cat", "-n", "f.txt")
	assert.Contains(t, c.stdout.String(), "1\tline1")
	assert.Contains(t, c.stdout.String(), "2\tline2")

	code, _ = run(t, dir, "cat", "missing.txt")
	assert.Equal(t, ExitFailure, code)
}

func TestMkdirRmdir(t *testing.T) {
	dir := t.TempDir()

	code, _ := run(t, dir, "mkdir", "sub")
	assert.Equal(t, ExitOK, code)
	assert.DirExists(t, filepath.Join(dir, "sub"))

	code, _ = run(t, dir, "mkdir", "a/b/c")
	assert.Equal(t, ExitFailure, code)

	code, _ = run(t, dir, "mkdir", "-p", "a/b/c")
	assert.Equal(t, ExitOK, code)
	assert.DirExists(t, filepath.Join(dir, "a", "b", "c"))

	code, _ = run(t, dir, "rmdir", "sub")
	assert.Equal(t, ExitOK, code)
	assert.NoDirExists(t, filepath.Join(dir, "sub"))
}

func TestRm(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "f.txt", "x")
	write(t, dir, "sub/g.txt", "y")

	code, _ := run(t, dir, "rm", "f.txt")
	assert.Equal(t, ExitOK, code)
	assert.NoFileExists(t, filepath.Join(dir, "f.txt"))

	code, _ = run(t, dir, "rm", "sub")
	assert.Equal(t, ExitFailure, code)

	code, _ = run(t, dir, "rm", "-rf", "sub")
	assert.Equal(t, ExitOK, code)
	assert.NoDirExists(t, filepath.Join(dir, "sub"))

	code, _ = run(t, dir, "rm", "missing")
	assert.Equal(t, ExitFailure, code)

	code, _ = run(t, dir, "rm", "-f", "missing")
	assert.Equal(t, ExitOK, code)
}

func TestCpMv(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "src.txt", "payload")

	code, _ := run(t, dir, "cp", "src.txt", "dst.txt")
	assert.Equal(t, ExitOK, code)
	data, err := os.ReadFile(filepath.Join(dir, "dst.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	write(t, dir, "tree/a/f.txt", "deep")
	code, _ = run(t, dir, "cp", "tree", "tree2")
	assert.Equal(t, ExitFailure, code)

	code, _ = run(t, dir, "cp", "-r", "tree", "tree2")
	assert.Equal(t, ExitOK, code)
	assert.FileExists(t, filepath.Join(dir, "tree2", "a", "f.txt"))

	code, _ = run(t, dir, "mv", "dst.txt", "moved.txt")
	assert.Equal(t, ExitOK, code)
	assert.NoFileExists(t, filepath.Join(dir, "dst.txt"))
	assert.FileExists(t, filepath.Join(dir, "moved.txt"))
}

func TestHeadTail(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "f.txt", "1\n2\n3\n4\n5\n")

	_, c := run(t, dir, "head", "-n", "2", "f.txt")
	assert.Equal(t, "1\n2\n", c.stdout.String())

	_, c = run(t, dir, "tail", "-n", "2", "f.txt")
	assert.Equal(t, "4\n5\n", c.stdout.String())

	_, c = run(t, dir, "head", "f.txt")
	assert.Equal(t, "1\n2\n3\n4\n5\n", c.stdout.String())
}

func TestWc(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "f.txt", "one two\nthree\n")

	code, c := run(t, dir, "wc", "f.txt")
	assert.Equal(t, ExitOK, code)
	fields := strings.Fields(c.stdout.String())
	require.Len(t, fields, 4)
	assert.Equal(t, []string{"2", "3", "14", "f.txt"}, fields)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.js", "")
	write(t, dir, "sub/b.js", "")
	write(t, dir, "sub/c.txt", "")
	write(t, dir, "node_modules/x/ignored.js", "")
	write(t, dir, ".git/config", "")

	_, c := run(t, dir, "find", ".", "-name", "*.js")
	out := c.stdout.String()
	assert.Contains(t, out, "a.js")
	assert.Contains(t, out, filepath.Join("sub", "b.js"))
	assert.NotContains(t, out, "ignored.js")
	assert.NotContains(t, out, "c.txt")

	_, c = run(t, dir, "find", ".", "-type", "d")
	out = c.stdout.String()
	assert.Contains(t, out, "sub")
	assert.NotContains(t, out, "node_modules")
}

func TestDirnameBasenameRealpath(t *testing.T) {
	_, c := run(t, t.TempDir(), "dirname", "/a/b/c.txt")
	assert.Equal(t, "/a/b\n", c.stdout.String())

	_, c = run(t, t.TempDir(), "basename", "/a/b/c.txt")
	assert.Equal(t, "c.txt\n", c.stdout.String())

	dir := t.TempDir()
	write(t, dir, "f.txt", "")
	_, c = run(t, dir, "realpath", "f.txt")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(c.stdout.String()), "f.txt"))
}

func TestTrueFalse(t *testing.T) {
	code, _ := run(t, t.TempDir(), "true")
	assert.Equal(t, ExitOK, code)

	code, _ = run(t, t.TempDir(), "false")
	assert.Equal(t, ExitFailure, code)
}

func TestUname(t *testing.T) {
	_, c := run(t, t.TempDir(), "uname")
	assert.NotEmpty(t, strings.TrimSpace(c.stdout.String()))

	_, c = run(t, t.TempDir(), "uname", "-m")
	assert.NotEmpty(t, strings.TrimSpace(c.stdout.String()))
}

func TestTouch(t *testing.T) {
	dir := t.TempDir()
	code, _ := run(t, dir, "touch", "new.txt")
	assert.Equal(t, ExitOK, code)
	assert.FileExists(t, filepath.Join(dir, "new.txt"))
}

func TestWhich(t *testing.T) {
	dir := t.TempDir()

	code, c := run(t, dir, "which", "echo")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, c.stdout.String(), "builtin")

	write(t, dir, "node_modules/.bin/tsc-lite", "#!/usr/bin/env node\nrequire('../tsc-lite/cli.js');\n")
	code, c = run(t, dir, "which", "tsc-lite")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, c.stdout.String(), filepath.Join("node_modules", ".bin", "tsc-lite"))

	code, _ = run(t, dir, "which", "no-such-tool")
	assert.Equal(t, ExitFailure, code)
}

func TestGlobTranslation(t *testing.T) {
	re, err := globToRegexp("*.test.js")
	require.NoError(t, err)
	assert.True(t, re.MatchString("a.test.js"))
	assert.False(t, re.MatchString("a_test_js"))

	re, err = globToRegexp("file?.txt")
	require.NoError(t, err)
	assert.True(t, re.MatchString("file1.txt"))
	assert.False(t, re.MatchString("file12.txt"))

	// Regex metacharacters in the glob are literal.
	re, err = globToRegexp("a+b.txt")
	require.NoError(t, err)
	assert.True(t, re.MatchString("a+b.txt"))
	assert.False(t, re.MatchString("aab.txt"))
}
