// Package runner executes project JavaScript files in-process. Each run
// gets a fresh interpreter with redirected console and process globals, a
// require environment rooted at the entry file's directory, and a timer
// queue that keeps long-running programs (dev servers) alive until the
// task is canceled.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"

	"github.com/pocketnode/core/internal/npm"
	"github.com/pocketnode/core/internal/ports"
)

// NodeVersion is the engine version reported to scripts and over the
// channel.
const NodeVersion = "v18.17.0"

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitCanceled = 130
)

// exitSignal is the tagged interrupt value process.exit() raises.
type exitSignal struct {
	code int
}

// cancelSignal is the interrupt value a kill raises.
type cancelSignal struct{}

// Runner executes scripts and package bins.
type Runner struct {
	logger ports.Logger
}

// New creates a Runner.
func New(logger ports.Logger) *Runner {
	return &Runner{logger: logger}
}

// RunFile implements `node [flags] [file] [args...]`. Supported flags:
// -v/--version, -e <expr> (evaluate), -p <expr> (evaluate and print).
func (r *Runner) RunFile(ctx context.Context, args []string, dir string, emit ports.Emitter) int {
	if len(args) > 0 {
		switch args[0] {
		case "-v", "--version":
			emit.Emit(ports.Stdout, []byte(NodeVersion+"\n"))
			return exitOK
		case "-e", "-p":
			if len(args) < 2 {
				emit.Emit(ports.Stderr, []byte("node: missing expression argument\n"))
				return exitFailure
			}
			return r.runExpr(ctx, args[1], args[0] == "-p", dir, emit)
		}
	}

	if len(args) == 0 {
		emit.Emit(ports.Stderr, []byte("node: missing script argument\n"))
		return exitFailure
	}

	file, err := resolveEntry(dir, args[0])
	if err != nil {
		emit.Emit(ports.Stderr, []byte(fmt.Sprintf("Cannot find module '%s'\n", args[0])))
		return exitFailure
	}

	return r.run(ctx, dir, emit, args[1:], func(env *jsEnv) error {
		_, err := env.req.Require(file)
		return err
	}, file)
}

// RunBin implements `npx <bin>` and running installed package bins by
// name: first the node_modules/.bin stub, then the package's own bin or
// main declaration.
func (r *Runner) RunBin(ctx context.Context, binName string, args []string, dir string, emit ports.Emitter) int {
	target, err := resolveBin(dir, binName)
	if err != nil {
		emit.Emit(ports.Stderr, []byte(fmt.Sprintf("Cannot find module '%s'\n", binName)))
		return exitFailure
	}
	return r.RunFile(ctx, append([]string{target}, args...), dir, emit)
}

// runExpr evaluates a -e/-p expression.
func (r *Runner) runExpr(ctx context.Context, expr string, print bool, dir string, emit ports.Emitter) int {
	return r.run(ctx, dir, emit, nil, func(env *jsEnv) error {
		v, err := env.vm.RunScript("[eval]", expr)
		if err != nil {
			return err
		}
		if print {
			emit.Emit(ports.Stdout, []byte(Inspect(v)+"\n"))
		}
		return nil
	}, "[eval]")
}

// jsEnv bundles one run's interpreter state.
type jsEnv struct {
	vm     *goja.Runtime
	req    *require.RequireModule
	timers *timerQueue
	exited *exitSignal
}

// run builds a fresh interpreter, executes body, then drains timers so
// long-running programs stay alive until cancellation.
func (r *Runner) run(ctx context.Context, dir string, emit ports.Emitter, argv []string, body func(*jsEnv) error, script string) int {
	vm := goja.New()

	registry := require.NewRegistry(
		require.WithLoader(sourceLoader),
		require.WithGlobalFolders(filepath.Join(dir, npm.NodeModulesDir)),
	)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&printer{emit: emit}))

	env := &jsEnv{
		vm:     vm,
		req:    registry.Enable(vm),
		timers: newTimerQueue(),
	}
	console.Enable(vm)
	env.timers.install(vm)
	r.installProcess(env, dir, script, argv)

	// Propagate cancellation into the interpreter.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(cancelSignal{})
			env.timers.stopAll()
		case <-watchDone:
		}
	}()

	if code, done := r.finish(env, emit, body(env)); done {
		return code
	}

	// Main script finished; service timers until none remain or the task
	// is canceled.
	for env.timers.active() {
		job, ok := env.timers.next(ctx)
		if !ok {
			return exitCanceled
		}
		if code, done := r.finish(env, emit, job()); done {
			return code
		}
	}

	if ctx.Err() != nil {
		return exitCanceled
	}
	return exitOK
}

// finish classifies an execution error. The second return value is true
// when the run is over.
func (r *Runner) finish(env *jsEnv, emit ports.Emitter, err error) (int, bool) {
	if err == nil {
		if env.exited != nil {
			return env.exited.code, true
		}
		return 0, false
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch v := interrupted.Value().(type) {
		case exitSignal:
			return v.code, true
		case cancelSignal:
			return exitCanceled, true
		}
		return exitCanceled, true
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		emit.Emit(ports.Stderr, []byte(trimStack(exception.String())+"\n"))
		return exitFailure, true
	}

	emit.Emit(ports.Stderr, []byte(err.Error()+"\n"))
	return exitFailure, true
}

// installProcess builds the process global: argv, env, cwd, platform,
// version, and an exit that unwinds through a tagged interrupt.
func (r *Runner) installProcess(env *jsEnv, dir, script string, argv []string) {
	vm := env.vm
	proc := vm.NewObject()

	jsArgv := append([]string{"node", script}, argv...)
	_ = proc.Set("argv", jsArgv)
	_ = proc.Set("platform", runtime.GOOS)
	_ = proc.Set("arch", runtime.GOARCH)
	_ = proc.Set("version", NodeVersion)

	envMap := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	_ = proc.Set("env", envMap)

	_ = proc.Set("cwd", func() string { return dir })

	_ = proc.Set("exit", func(call goja.FunctionCall) goja.Value {
		code := 0
		if len(call.Arguments) > 0 {
			code = int(call.Argument(0).ToInteger())
		}
		env.exited = &exitSignal{code: code}
		vm.Interrupt(exitSignal{code: code})
		return goja.Undefined()
	})

	_ = vm.Set("process", proc)
}

// printer adapts the console module to the task's streams. log/info/debug
// go to stdout; warn/error to stderr.
type printer struct {
	emit ports.Emitter
}

func (p *printer) Log(s string)   { p.emit.Emit(ports.Stdout, []byte(s+"\n")) }
func (p *printer) Warn(s string)  { p.emit.Emit(ports.Stderr, []byte(s+"\n")) }
func (p *printer) Error(s string) { p.emit.Emit(ports.Stderr, []byte(s+"\n")) }

// sourceLoader reads module sources from disk, stripping shebang lines so
// package bins evaluate cleanly.
func sourceLoader(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) || isDir(path) {
			return nil, require.ModuleFileDoesNotExistError
		}
		return nil, err
	}
	return stripShebang(data), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// stripShebang removes a leading "#!" line.
func stripShebang(src []byte) []byte {
	if len(src) >= 2 && src[0] == '#' && src[1] == '!' {
		if i := strings.IndexByte(string(src), '\n'); i >= 0 {
			return src[i+1:]
		}
		return nil
	}
	return src
}

// resolveEntry locates the file a `node <arg>` invocation refers to.
func resolveEntry(dir, arg string) (string, error) {
	path := arg
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return path, nil
		}
		// Directory: package.json main, then index.js.
		if pkg, err := npm.LoadPackageJSON(path); err == nil && pkg.Main != "" {
			main := filepath.Join(path, filepath.FromSlash(pkg.Main))
			if _, err := os.Stat(main); err == nil {
				return main, nil
			}
		}
		index := filepath.Join(path, "index.js")
		if _, err := os.Stat(index); err == nil {
			return index, nil
		}
		return "", os.ErrNotExist
	}

	if _, err := os.Stat(path + ".js"); err == nil {
		return path + ".js", nil
	}
	return "", os.ErrNotExist
}

// resolveBin locates the entry file behind a bin name.
func resolveBin(dir, binName string) (string, error) {
	binDir := filepath.Join(dir, npm.NodeModulesDir, npm.BinDir)

	// A generated stub points at the real entry.
	if stub, err := os.ReadFile(filepath.Join(binDir, binName)); err == nil {
		if target, ok := npm.BinStubTarget(stub); ok {
			return filepath.Join(binDir, filepath.FromSlash(target)), nil
		}
	}

	// Fall back to the package's own manifest.
	pkgDir := filepath.Join(dir, npm.NodeModulesDir, binName)
	pkg, err := npm.LoadPackageJSON(pkgDir)
	if err != nil {
		return "", os.ErrNotExist
	}

	meta := binMeta(binName, pkg)
	if target, ok := meta[binName]; ok {
		return filepath.Join(pkgDir, filepath.FromSlash(target)), nil
	}
	for _, target := range meta {
		return filepath.Join(pkgDir, filepath.FromSlash(target)), nil
	}
	if pkg.Main != "" {
		return filepath.Join(pkgDir, filepath.FromSlash(pkg.Main)), nil
	}
	return "", os.ErrNotExist
}

// binMeta normalizes a manifest bin declaration.
func binMeta(name string, pkg *npm.PackageJSON) map[string]string {
	if len(pkg.Bin) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(pkg.Bin, &single); err == nil && single != "" {
		return map[string]string{name: single}
	}
	var multi map[string]string
	if err := json.Unmarshal(pkg.Bin, &multi); err == nil {
		return multi
	}
	return nil
}

// trimStack removes interpreter-internal frames from a JS stack trace.
func trimStack(stack string) string {
	lines := strings.Split(stack, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.Contains(trimmed, "(native)") ||
			strings.Contains(trimmed, "goja") ||
			strings.Contains(trimmed, "github.com/pocketnode") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.TrimRight(strings.Join(kept, "\n"), "\n")
}
