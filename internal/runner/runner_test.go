package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketnode/core/internal/adapters/logging"
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

func newRunner() *Runner {
	return New(logging.NewNopLogger())
}

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunFileConsole(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "main.js", "console.log(2 + 2);\n")

	var c capture
	code := newRunner().RunFile(context.Background(), []string{"main.js"}, dir, &c)
	assert.Equal(t, 0, code)
	assert.Equal(t, "4\n", c.stdout.String())
	assert.Empty(t, c.stderr.String())
}

func TestRunFileStderr(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "main.js", "console.error('boom'); console.warn('careful');\n")

	var c capture
	code := newRunner().RunFile(context.Background(), []string{"main.js"}, dir, &c)
	assert.Equal(t, 0, code)
	assert.Contains(t, c.stderr.String(), "boom")
	assert.Contains(t, c.stderr.String(), "careful")
}

func TestRunEval(t *testing.T) {
	var c capture
	code := newRunner().RunFile(context.Background(), []string{"-e", "console.log(1 + 2)"}, t.TempDir(), &c)
	assert.Equal(t, 0, code)
	assert.Equal(t, "3\n", c.stdout.String())
}

func TestRunEvalPrint(t *testing.T) {
	var c capture
	code := newRunner().RunFile(context.Background(), []string{"-p", "6 * 7"}, t.TempDir(), &c)
	assert.Equal(t, 0, code)
	assert.Equal(t, "42\n", c.stdout.String())
}

func TestRunVersion(t *testing.T) {
	var c capture
	code := newRunner().RunFile(context.Background(), []string{"-v"}, t.TempDir(), &c)
	assert.Equal(t, 0, code)
	assert.Equal(t, NodeVersion+"\n", c.stdout.String())
}

func TestRunMissingFile(t *testing.T) {
	var c capture
	code := newRunner().RunFile(context.Background(), []string{"absent.js"}, t.TempDir(), &c)
	assert.Equal(t, 1, code)
	assert.Contains(t, c.stderr.String(), "Cannot find module")
}

func TestRunProcessExit(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "main.js", "console.log('before'); process.exit(3); console.log('after');\n")

	var c capture
	code := newRunner().RunFile(context.Background(), []string{"main.js"}, dir, &c)
	assert.Equal(t, 3, code)
	assert.Contains(t, c.stdout.String(), "before")
	assert.NotContains(t, c.stdout.String(), "after")
}

func TestRunProcessArgvAndCwd(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "main.js", "console.log(process.argv[2]); console.log(process.cwd());\n")

	var c capture
	code := newRunner().RunFile(context.Background(), []string{"main.js", "hello"}, dir, &c)
	assert.Equal(t, 0, code)
	assert.Contains(t, c.stdout.String(), "hello")
	assert.Contains(t, c.stdout.String(), dir)
}

func TestRunUserError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "main.js", "throw new Error('user fault');\n")

	var c capture
	code := newRunner().RunFile(context.Background(), []string{"main.js"}, dir, &c)
	assert.Equal(t, 1, code)
	assert.Contains(t, c.stderr.String(), "user fault")
}

func TestRunRequireRelative(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "lib/add.js", "module.exports = function(a, b) { return a + b; };\n")
	writeScript(t, dir, "main.js", "const add = require('./lib/add.js'); console.log(add(2, 3));\n")

	var c capture
	code := newRunner().RunFile(context.Background(), []string{"main.js"}, dir, &c)
	assert.Equal(t, 0, code, c.stderr.String())
	assert.Equal(t, "5\n", c.stdout.String())
}

func TestRunRequireInstalledPackage(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "node_modules/greeter/package.json", `{"name":"greeter","version":"1.0.0","main":"index.js"}`)
	writeScript(t, dir, "node_modules/greeter/index.js", "module.exports = { hi: function(n) { return 'hi ' + n; } };\n")
	writeScript(t, dir, "main.js", "const g = require('greeter'); console.log(g.hi('there'));\n")

	var c capture
	code := newRunner().RunFile(context.Background(), []string{"main.js"}, dir, &c)
	assert.Equal(t, 0, code, c.stderr.String())
	assert.Equal(t, "hi there\n", c.stdout.String())
}

func TestRunShebangStripped(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "cli.js", "#!/usr/bin/env node\nconsole.log('ran');\n")

	var c capture
	code := newRunner().RunFile(context.Background(), []string{"cli.js"}, dir, &c)
	assert.Equal(t, 0, code, c.stderr.String())
	assert.Equal(t, "ran\n", c.stdout.String())
}

func TestRunTimeout(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "main.js", "setTimeout(function() { console.log('later'); }, 20);\n")

	var c capture
	code := newRunner().RunFile(context.Background(), []string{"main.js"}, dir, &c)
	assert.Equal(t, 0, code)
	assert.Equal(t, "later\n", c.stdout.String())
}

func TestRunLongRunningCanceled(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "server.js", "setInterval(function() { console.log('tick'); }, 30);\n")

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int, 1)
	var c capture
	go func() {
		done <- newRunner().RunFile(ctx, []string{"server.js"}, dir, &c)
	}()

	// Let a few ticks through, then kill.
	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 130, code)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
	assert.Contains(t, c.stdout.String(), "tick")
}

func TestRunBinStub(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "node_modules/tool/cli.js", "console.log('tool ran');\n")
	writeScript(t, dir, "node_modules/.bin/tool", "#!/usr/bin/env node\nrequire('../tool/cli.js');\n")

	var c capture
	code := newRunner().RunBin(context.Background(), "tool", nil, dir, &c)
	assert.Equal(t, 0, code, c.stderr.String())
	assert.Equal(t, "tool ran\n", c.stdout.String())
}

func TestRunBinFromManifest(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "node_modules/tool/package.json", `{"name":"tool","version":"1.0.0","bin":"./run.js"}`)
	writeScript(t, dir, "node_modules/tool/run.js", "console.log('manifest bin');\n")

	var c capture
	code := newRunner().RunBin(context.Background(), "tool", nil, dir, &c)
	assert.Equal(t, 0, code, c.stderr.String())
	assert.Equal(t, "manifest bin\n", c.stdout.String())
}

func TestRunBinMissing(t *testing.T) {
	var c capture
	code := newRunner().RunBin(context.Background(), "ghost", nil, t.TempDir(), &c)
	assert.Equal(t, 1, code)
	assert.Contains(t, c.stderr.String(), "Cannot find module")
}

func TestInspect(t *testing.T) {
	var c capture
	code := newRunner().RunFile(context.Background(),
		[]string{"-p", "({name: 'x', nums: [1, 2], ok: true})"}, t.TempDir(), &c)
	assert.Equal(t, 0, code)
	out := c.stdout.String()
	assert.Contains(t, out, "name: \"x\"")
	assert.Contains(t, out, "nums: [ 1, 2 ]")
	assert.Contains(t, out, "ok: true")
}
