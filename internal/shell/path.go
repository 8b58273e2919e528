package shell

import (
	"os"
	"path/filepath"
	"strings"
)

// Path commands.

func init() {
	addBuiltins(map[string]builtinFn{
		"find":     find,
		"which":    which,
		"dirname":  dirnameCmd,
		"basename": basenameCmd,
		"realpath": realpathCmd,
	})
}

// findSkip names directories that find never descends into.
var findSkip = map[string]bool{
	"node_modules": true,
	".git":         true,
}

func find(inv *Invocation) int {
	root := "."
	var namePattern, typeFilter string

	args := inv.Args
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-name":
			if i+1 < len(args) {
				namePattern = args[i+1]
				i++
			}
		case "-type":
			if i+1 < len(args) {
				typeFilter = args[i+1]
				i++
			}
		default:
			if !strings.HasPrefix(args[i], "-") {
				root = args[i]
			}
		}
	}

	var matcher func(string) bool
	if namePattern != "" {
		re, err := globToRegexp(namePattern)
		if err != nil {
			inv.errf("find: bad pattern %q", namePattern)
			return ExitFailure
		}
		matcher = re.MatchString
	}

	rootAbs := inv.resolve(root)
	err := filepath.WalkDir(rootAbs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := inv.Ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() && findSkip[d.Name()] {
			return filepath.SkipDir
		}

		if typeFilter == "f" && d.IsDir() {
			return nil
		}
		if typeFilter == "d" && !d.IsDir() {
			return nil
		}
		if matcher != nil && !matcher(d.Name()) {
			return nil
		}

		rel, rerr := filepath.Rel(rootAbs, path)
		if rerr != nil {
			return nil
		}
		if rel == "." {
			inv.out(root)
		} else {
			inv.out(filepath.Join(root, rel))
		}
		return nil
	})
	if err != nil {
		return ExitFailure
	}
	return ExitOK
}

func which(inv *Invocation) int {
	_, pos := splitFlags(inv.Args)
	if len(pos) == 0 {
		inv.errf("which: missing operand")
		return ExitFailure
	}

	name := pos[0]

	// Installed package bins are reported before builtins of the same name.
	stub := filepath.Join(inv.Dir, "node_modules", ".bin", name)
	if _, err := os.Stat(stub); err == nil {
		inv.out(stub)
		return ExitOK
	}
	if IsBuiltin(name) || name == "node" || name == "npm" || name == "npx" {
		inv.out(name + ": shell builtin")
		return ExitOK
	}

	return ExitFailure
}

func dirnameCmd(inv *Invocation) int {
	if len(inv.Args) == 0 {
		inv.errf("dirname: missing operand")
		return ExitFailure
	}
	inv.out(filepath.Dir(inv.Args[0]))
	return ExitOK
}

func basenameCmd(inv *Invocation) int {
	if len(inv.Args) == 0 {
		inv.errf("basename: missing operand")
		return ExitFailure
	}
	inv.out(filepath.Base(inv.Args[0]))
	return ExitOK
}

func realpathCmd(inv *Invocation) int {
	if len(inv.Args) == 0 {
		inv.out(inv.Dir)
		return ExitOK
	}

	path := inv.resolve(inv.Args[0])
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	inv.out(path)
	return ExitOK
}
