package shell

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/pocketnode/core/internal/ports"
)

// System commands.

func init() {
	addBuiltins(map[string]builtinFn{
		"pwd":    pwd,
		"env":    env,
		"whoami": whoami,
		"uname":  uname,
		"date":   date,
		"clear":  clear,
		"true":   cmdTrue,
		"false":  cmdFalse,
	})
}

func pwd(inv *Invocation) int {
	inv.out(inv.Dir)
	return ExitOK
}

func env(inv *Invocation) int {
	for _, kv := range os.Environ() {
		inv.out(kv)
	}
	return ExitOK
}

func whoami(inv *Invocation) int {
	user := os.Getenv("USER")
	if user == "" {
		user = "mobile"
	}
	inv.out(user)
	return ExitOK
}

func uname(inv *Invocation) int {
	flags, _ := splitFlags(inv.Args)

	kernel := strings.ToUpper(runtime.GOOS[:1]) + runtime.GOOS[1:]
	switch {
	case flags["a"]:
		inv.out(kernel + " pocketnode " + runtime.GOARCH)
	case flags["m"]:
		inv.out(runtime.GOARCH)
	default:
		inv.out(kernel)
	}
	return ExitOK
}

func date(inv *Invocation) int {
	inv.out(time.Now().Format("Mon Jan  2 15:04:05 MST 2006"))
	return ExitOK
}

func clear(inv *Invocation) int {
	inv.Emit.Emit(ports.Stdout, []byte("\x1b[2J\x1b[H"))
	return ExitOK
}

func cmdTrue(*Invocation) int  { return ExitOK }
func cmdFalse(*Invocation) int { return ExitFailure }
