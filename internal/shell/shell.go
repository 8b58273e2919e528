// Package shell implements the in-process POSIX-style builtin commands
// exposed through exec. Builtins operate on the shared filesystem relative
// to a per-invocation working directory and write to the task's streams.
package shell

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pocketnode/core/internal/ports"
)

// Exit codes follow POSIX conventions.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitNotFound = 127
)

// Invocation carries the state one builtin call runs against.
type Invocation struct {
	Ctx  context.Context
	Dir  string
	Args []string
	Emit ports.Emitter
}

// builtinFn is the implementation of one builtin command.
type builtinFn func(*Invocation) int

var builtins = map[string]builtinFn{}

// addBuiltins registers a group of builtin commands.
func addBuiltins(fns map[string]builtinFn) {
	for name, fn := range fns {
		builtins[name] = fn
	}
}

// IsBuiltin reports whether name is a builtin command.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

// Run executes a builtin. The second return value is false when the
// command is not a builtin.
func Run(ctx context.Context, name string, args []string, dir string, emit ports.Emitter) (int, bool) {
	fn, ok := builtins[name]
	if !ok {
		return ExitNotFound, false
	}

	inv := &Invocation{Ctx: ctx, Dir: dir, Args: args, Emit: emit}
	return fn(inv), true
}

// out writes a line to stdout.
func (inv *Invocation) out(line string) {
	inv.Emit.Emit(ports.Stdout, []byte(line+"\n"))
}

// outf writes formatted text to stdout without a trailing newline.
func (inv *Invocation) outf(format string, args ...interface{}) {
	inv.Emit.Emit(ports.Stdout, []byte(fmt.Sprintf(format, args...)))
}

// errf writes a formatted error line to stderr.
func (inv *Invocation) errf(format string, args ...interface{}) {
	inv.Emit.Emit(ports.Stderr, []byte(fmt.Sprintf(format, args...)+"\n"))
}

// resolve turns a command argument into an absolute path.
func (inv *Invocation) resolve(arg string) string {
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg)
	}
	return filepath.Join(inv.Dir, arg)
}

// splitFlags separates leading grouped boolean dash-flags ("-rf" is "-r"
// "-f") from positional arguments. Parsing stops at the first positional
// argument or "--". Commands with valued flags parse those themselves.
func splitFlags(args []string) (flags map[string]bool, pos []string) {
	flags = make(map[string]bool)
	i := 0
	for i < len(args) {
		a := args[i]
		if a == "--" {
			i++
			break
		}
		if !strings.HasPrefix(a, "-") || a == "-" {
			break
		}
		for _, c := range a[1:] {
			flags[string(c)] = true
		}
		i++
	}
	return flags, args[i:]
}

// globToRegexp translates a shell glob into an anchored regular
// expression: "*" matches any run, "?" any single character, and every
// other metacharacter is escaped.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}
