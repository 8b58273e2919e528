package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pocketnode/core/internal/npm"
	"github.com/pocketnode/core/internal/ports"
	"github.com/pocketnode/core/internal/runner"
	"github.com/pocketnode/core/internal/shell"
)

// npmVersion is the version string `npm -v` reports.
const npmVersion = "9.6.7"

// dispatch routes one exec request to the owning subsystem.
func (s *Supervisor) dispatch(ctx context.Context, command string, args []string, cwd string, emit ports.Emitter) int {
	switch command {
	case "node":
		return s.runner.RunFile(ctx, args, cwd, emit)

	case "npx":
		if len(args) == 0 {
			emitLine(emit, ports.Stderr, "npx: missing command")
			return shell.ExitFailure
		}
		return s.runner.RunBin(ctx, args[0], args[1:], cwd, emit)

	case "npm", "yarn", "pnpm", "bun":
		return s.npmCommand(ctx, args, cwd, emit)
	}

	if code, ok := shell.Run(ctx, command, args, cwd, emit); ok {
		return code
	}

	// Installed package bins run by bare name.
	if hasBin(cwd, command) {
		return s.runner.RunBin(ctx, command, args, cwd, emit)
	}

	emitLine(emit, ports.Stderr, command+": command not found")
	return shell.ExitNotFound
}

// hasBin reports whether cwd's node_modules provides the named bin.
func hasBin(cwd, name string) bool {
	if _, err := os.Stat(filepath.Join(cwd, npm.NodeModulesDir, npm.BinDir, name)); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(cwd, npm.NodeModulesDir, name, npm.PackageJSONName)); err == nil {
		return true
	}
	return false
}

// npmCommand implements the npm CLI surface. yarn/pnpm/bun alias here.
func (s *Supervisor) npmCommand(ctx context.Context, args []string, cwd string, emit ports.Emitter) int {
	if len(args) == 0 {
		s.npmHelp(emit)
		return shell.ExitFailure
	}

	sub := args[0]
	rest, dev, production := npmFlags(args[1:])

	switch sub {
	case "-v", "--version":
		emitLine(emit, ports.Stdout, npmVersion)
		return shell.ExitOK

	case "install", "i":
		if len(rest) == 0 {
			return s.npm.Install(ctx, cwd, production, emit)
		}
		return s.npm.Add(ctx, cwd, rest, dev, emit)

	case "add":
		if len(rest) == 0 {
			emitLine(emit, ports.Stderr, "npm add: missing package argument")
			return shell.ExitFailure
		}
		return s.npm.Add(ctx, cwd, rest, dev, emit)

	case "ci":
		return s.npm.CI(ctx, cwd, emit)

	case "run", "run-script":
		if len(rest) == 0 {
			emitLine(emit, ports.Stderr, "npm run: missing script name")
			return shell.ExitFailure
		}
		return s.runScript(ctx, cwd, rest[0], rest[1:], emit)

	case "start":
		return s.runScript(ctx, cwd, "start", rest, emit)

	case "test", "t":
		return s.runScript(ctx, cwd, "test", rest, emit)

	case "init":
		return s.npm.Init(cwd, emit)

	case "ls", "list":
		return s.npm.Ls(cwd, emit)

	case "uninstall", "remove", "rm", "un":
		if len(rest) == 0 {
			emitLine(emit, ports.Stderr, "npm uninstall: missing package argument")
			return shell.ExitFailure
		}
		return s.npm.Uninstall(ctx, cwd, rest, emit)

	case "help":
		s.npmHelp(emit)
		return shell.ExitOK
	}

	emitLine(emit, ports.Stderr, "npm: unknown command "+sub)
	return shell.ExitFailure
}

// npmFlags strips the recognized flags from npm arguments.
func npmFlags(args []string) (rest []string, dev, production bool) {
	for _, a := range args {
		switch a {
		case "--save-dev", "-D":
			dev = true
		case "--production", "--omit=dev":
			production = true
		case "--save", "-S":
			// Default behavior.
		default:
			rest = append(rest, a)
		}
	}
	return rest, dev, production
}

// runScript executes a package.json script by name. `start` falls back to
// server.js, index.js, and finally the built-in preview server; `test`
// falls back to the conventional missing-test error.
func (s *Supervisor) runScript(ctx context.Context, cwd, name string, extra []string, emit ports.Emitter) int {
	pkg, _ := npm.LoadPackageJSON(cwd)

	if pkg != nil {
		if script, ok := pkg.Scripts[name]; ok && strings.TrimSpace(script) != "" {
			emitLine(emit, ports.Stdout, "> "+script)
			fields := strings.Fields(script)
			args := append(fields[1:], extra...)
			return s.dispatch(ctx, fields[0], args, cwd, emit)
		}
	}

	switch name {
	case "start":
		for _, candidate := range []string{"server.js", "index.js"} {
			if _, err := os.Stat(filepath.Join(cwd, candidate)); err == nil {
				return s.runner.RunFile(ctx, append([]string{candidate}, extra...), cwd, emit)
			}
		}
		// No user start target: serve the built-in preview.
		s.logger.Info(ctx, "no start script, serving built-in preview",
			ports.F("dir", cwd))
		return s.servePreview(ctx, cwd, emit)

	case "test":
		emitLine(emit, ports.Stderr, "Error: no test specified")
		return shell.ExitFailure
	}

	emitLine(emit, ports.Stderr, "npm: missing script: "+name)
	return shell.ExitFailure
}

// emitLine writes one newline-terminated line.
func emitLine(emit ports.Emitter, stream ports.Stream, line string) {
	emit.Emit(stream, []byte(line+"\n"))
}

func (s *Supervisor) npmHelp(emit ports.Emitter) {
	help := []string{
		"npm <command>",
		"",
		"Usage:",
		"  npm install [pkg...] [--save-dev] [--production]",
		"  npm ci",
		"  npm run <script> [args...]",
		"  npm start | test | init | ls",
		"  npm uninstall <pkg...>",
	}
	for _, line := range help {
		emitLine(emit, ports.Stdout, line)
	}
}

// NodeVersion exposes the engine version for channel info frames.
func NodeVersion() string {
	return runner.NodeVersion
}
