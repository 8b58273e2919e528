package shell

import (
	"os"
	"strconv"
	"strings"

	"github.com/pocketnode/core/internal/ports"
)

// Text commands.

func init() {
	addBuiltins(map[string]builtinFn{
		"echo": echo,
		"head": head,
		"tail": tail,
		"wc":   wc,
	})
}

func echo(inv *Invocation) int {
	args := inv.Args
	noNewline := false
	if len(args) > 0 && args[0] == "-n" {
		noNewline = true
		args = args[1:]
	}

	text := strings.Join(args, " ")
	if !noNewline {
		text += "\n"
	}
	inv.Emit.Emit(ports.Stdout, []byte(text))
	return ExitOK
}

// parseCount parses the "-n N" (or "-nN") flag shared by head and tail.
func parseCount(args []string, def int) (int, []string) {
	n := def
	var pos []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-n" && i+1 < len(args):
			if v, err := strconv.Atoi(args[i+1]); err == nil {
				n = v
			}
			i++
		case strings.HasPrefix(a, "-n") && len(a) > 2:
			if v, err := strconv.Atoi(a[2:]); err == nil {
				n = v
			}
		case strings.HasPrefix(a, "-") && len(a) > 1:
			// Bare "-N" form.
			if v, err := strconv.Atoi(a[1:]); err == nil {
				n = v
			}
		default:
			pos = append(pos, a)
		}
	}
	return n, pos
}

func head(inv *Invocation) int {
	n, pos := parseCount(inv.Args, 10)
	if len(pos) == 0 {
		inv.errf("head: missing operand")
		return ExitFailure
	}

	data, err := os.ReadFile(inv.resolve(pos[0]))
	if err != nil {
		inv.errf("head: %s: no such file or directory", pos[0])
		return ExitFailure
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if n < len(lines) {
		lines = lines[:n]
	}
	for _, line := range lines {
		inv.out(line)
	}
	return ExitOK
}

func tail(inv *Invocation) int {
	n, pos := parseCount(inv.Args, 10)
	if len(pos) == 0 {
		inv.errf("tail: missing operand")
		return ExitFailure
	}

	data, err := os.ReadFile(inv.resolve(pos[0]))
	if err != nil {
		inv.errf("tail: %s: no such file or directory", pos[0])
		return ExitFailure
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	for _, line := range lines {
		inv.out(line)
	}
	return ExitOK
}

func wc(inv *Invocation) int {
	_, pos := splitFlags(inv.Args)
	if len(pos) == 0 {
		inv.errf("wc: missing operand")
		return ExitFailure
	}

	code := ExitOK
	var totalLines, totalWords, totalBytes int
	for _, arg := range pos {
		data, err := os.ReadFile(inv.resolve(arg))
		if err != nil {
			inv.errf("wc: %s: no such file or directory", arg)
			code = ExitFailure
			continue
		}

		lines := strings.Count(string(data), "\n")
		words := len(strings.Fields(string(data)))
		totalLines += lines
		totalWords += words
		totalBytes += len(data)

		inv.outf("%8d %7d %7d %s\n", lines, words, len(data), arg)
	}
	if len(pos) > 1 {
		inv.outf("%8d %7d %7d total\n", totalLines, totalWords, totalBytes)
	}
	return code
}
