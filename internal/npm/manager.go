package npm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pocketnode/core/internal/ports"
	"github.com/pocketnode/core/internal/registry"
)

// Manager implements the npm subcommands that operate purely on the
// package graph: install, add, ci, uninstall, ls, init. Script-running
// subcommands live with the supervisor, which owns the script runner.
type Manager struct {
	resolver  *Resolver
	installer *Installer
	logger    ports.Logger
}

// NewManager creates a manager on top of a registry client.
func NewManager(client *registry.Client, logger ports.Logger) *Manager {
	return &Manager{
		resolver:  NewResolver(client, logger),
		installer: NewInstaller(client, logger),
		logger:    logger,
	}
}

// Install implements `npm install` with no package arguments.
func (m *Manager) Install(ctx context.Context, dir string, production bool, emit ports.Emitter) int {
	pkg, err := LoadPackageJSON(dir)
	if err != nil {
		emitLine(emit, ports.Stderr, "npm: no package.json found in "+dir)
		return 1
	}

	resolved, err := m.resolver.Resolve(ctx, pkg, ResolveOptions{Production: production})
	if err != nil {
		return canceledCode(emit)
	}

	return m.finishInstall(ctx, dir, pkg, resolved, emit)
}

// Add implements `npm install <spec>...`, recording new dependencies in
// the manifest.
func (m *Manager) Add(ctx context.Context, dir string, specs []string, dev bool, emit ports.Emitter) int {
	pkg, err := LoadPackageJSON(dir)
	if err != nil {
		pkg = DefaultPackageJSON(filepath.Base(dir))
	}

	_, newDeps, err := m.resolver.ResolvePackages(ctx, specs)
	if err != nil {
		return canceledCode(emit)
	}
	if len(newDeps) == 0 {
		emitLine(emit, ports.Stderr, "npm: nothing to install")
		return 1
	}

	for name, rng := range newDeps {
		if dev {
			if pkg.DevDependencies == nil {
				pkg.DevDependencies = make(map[string]string)
			}
			delete(pkg.Dependencies, name)
			pkg.DevDependencies[name] = rng
		} else {
			if pkg.Dependencies == nil {
				pkg.Dependencies = make(map[string]string)
			}
			delete(pkg.DevDependencies, name)
			pkg.Dependencies[name] = rng
		}
	}
	if err := pkg.Save(dir); err != nil {
		emitLine(emit, ports.Stderr, "npm: "+err.Error())
		return 1
	}

	// Re-resolve the whole manifest so the lockfile stays complete.
	resolved, err := m.resolver.Resolve(ctx, pkg, ResolveOptions{})
	if err != nil {
		return canceledCode(emit)
	}

	return m.finishInstall(ctx, dir, pkg, resolved, emit)
}

// CI implements `npm ci`: a clean install pinned exactly by the lockfile.
func (m *Manager) CI(ctx context.Context, dir string, emit ports.Emitter) int {
	pkg, err := LoadPackageJSON(dir)
	if err != nil {
		emitLine(emit, ports.Stderr, "npm: no package.json found in "+dir)
		return 1
	}

	lf, err := ReadLockfile(dir)
	if err != nil {
		emitLine(emit, ports.Stderr, "npm ci: missing "+LockfileName)
		return 1
	}

	if err := os.RemoveAll(filepath.Join(dir, NodeModulesDir)); err != nil {
		emitLine(emit, ports.Stderr, "npm ci: "+err.Error())
		return 1
	}

	resolved := make(map[string]*ResolvedPackage, len(lf.Dependencies))
	for name, entry := range lf.Dependencies {
		resolved[name] = &ResolvedPackage{
			Name:         name,
			Version:      entry.Version,
			Tarball:      entry.Resolved,
			Integrity:    entry.Integrity,
			Dependencies: entry.Requires,
		}
	}

	return m.finishInstall(ctx, dir, pkg, resolved, emit)
}

// Uninstall implements `npm uninstall <name>...`.
func (m *Manager) Uninstall(ctx context.Context, dir string, names []string, emit ports.Emitter) int {
	pkg, err := LoadPackageJSON(dir)
	if err != nil {
		emitLine(emit, ports.Stderr, "npm: no package.json found in "+dir)
		return 1
	}

	removed := 0
	for _, name := range names {
		if _, inDeps := pkg.Dependencies[name]; !inDeps {
			if _, inDev := pkg.DevDependencies[name]; !inDev {
				emitLine(emit, ports.Stderr, "npm: "+name+" is not a dependency")
				continue
			}
		}
		delete(pkg.Dependencies, name)
		delete(pkg.DevDependencies, name)

		dest := filepath.Join(dir, NodeModulesDir, filepath.FromSlash(name))
		installed, _ := LoadPackageJSON(dest)
		if err := os.RemoveAll(dest); err != nil {
			emitLine(emit, ports.Stderr, "npm: "+err.Error())
			continue
		}
		if installed != nil {
			removeBinStubs(filepath.Join(dir, NodeModulesDir, BinDir), installed, name)
		}
		removed++
	}

	if removed == 0 {
		return 1
	}

	if err := pkg.Save(dir); err != nil {
		emitLine(emit, ports.Stderr, "npm: "+err.Error())
		return 1
	}

	// Rebuild the lockfile from the remaining manifest.
	resolved, err := m.resolver.Resolve(ctx, pkg, ResolveOptions{})
	if err != nil {
		return canceledCode(emit)
	}
	if err := WriteLockfile(dir, BuildLockfile(pkg, resolved)); err != nil {
		emitLine(emit, ports.Stderr, "npm: "+err.Error())
		return 1
	}

	emitLine(emit, ports.Stdout, fmt.Sprintf("removed %d package(s)", removed))
	return 0
}

// Ls implements `npm ls`, printing the top level of node_modules.
func (m *Manager) Ls(dir string, emit ports.Emitter) int {
	pkg, _ := LoadPackageJSON(dir)
	name := filepath.Base(dir)
	if pkg != nil && pkg.Name != "" {
		name = pkg.Name
		if pkg.Version != "" {
			name += "@" + pkg.Version
		}
	}
	emitLine(emit, ports.Stdout, name+" "+dir)

	entries := installedPackages(filepath.Join(dir, NodeModulesDir))
	for i, e := range entries {
		prefix := "├── "
		if i == len(entries)-1 {
			prefix = "└── "
		}
		emitLine(emit, ports.Stdout, prefix+e)
	}
	if len(entries) == 0 {
		emitLine(emit, ports.Stdout, "└── (empty)")
	}
	return 0
}

// Init implements `npm init`, writing a default manifest.
func (m *Manager) Init(dir string, emit ports.Emitter) int {
	if _, err := LoadPackageJSON(dir); err == nil {
		emitLine(emit, ports.Stderr, "npm: package.json already exists")
		return 1
	}

	pkg := DefaultPackageJSON(filepath.Base(dir))
	if err := pkg.Save(dir); err != nil {
		emitLine(emit, ports.Stderr, "npm: "+err.Error())
		return 1
	}

	emitLine(emit, ports.Stdout, "Wrote "+filepath.Join(dir, PackageJSONName))
	return 0
}

// finishInstall runs the installer, writes the lockfile, and reports.
func (m *Manager) finishInstall(ctx context.Context, dir string, pkg *PackageJSON, resolved map[string]*ResolvedPackage, emit ports.Emitter) int {
	res, err := m.installer.Install(ctx, dir, resolved)
	if err != nil && errors.Is(err, context.Canceled) {
		return canceledCode(emit)
	}

	if err := WriteLockfile(dir, BuildLockfile(pkg, resolved)); err != nil {
		emitLine(emit, ports.Stderr, "npm: "+err.Error())
		return 1
	}

	summary := fmt.Sprintf("added %d package(s)", res.Installed)
	if res.Skipped > 0 {
		summary += fmt.Sprintf(", %d up to date", res.Skipped)
	}
	emitLine(emit, ports.Stdout, summary)

	if len(res.Failed) > 0 {
		emitLine(emit, ports.Stderr,
			fmt.Sprintf("npm: %d package(s) failed: %s", len(res.Failed), strings.Join(res.Failed, ", ")))
		return 1
	}
	return 0
}

// installedPackages lists "name@version" for every package under nm.
func installedPackages(nm string) []string {
	var out []string

	entries, err := os.ReadDir(nm)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == BinDir || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.HasPrefix(e.Name(), "@") {
			scoped, err := os.ReadDir(filepath.Join(nm, e.Name()))
			if err != nil {
				continue
			}
			for _, s := range scoped {
				if p, err := LoadPackageJSON(filepath.Join(nm, e.Name(), s.Name())); err == nil {
					out = append(out, e.Name()+"/"+s.Name()+"@"+p.Version)
				}
			}
			continue
		}
		if p, err := LoadPackageJSON(filepath.Join(nm, e.Name())); err == nil {
			out = append(out, e.Name()+"@"+p.Version)
		}
	}

	sort.Strings(out)
	return out
}

// removeBinStubs deletes the stubs belonging to an uninstalled package.
func removeBinStubs(binDir string, pkg *PackageJSON, name string) {
	meta := registry.VersionMeta{Name: name, Bin: pkg.Bin}
	for binName := range meta.BinMap() {
		_ = os.Remove(filepath.Join(binDir, binName))
	}
}

// emitLine writes one newline-terminated line to a stream.
func emitLine(emit ports.Emitter, stream ports.Stream, line string) {
	emit.Emit(stream, []byte(line+"\n"))
}

// canceledCode reports cancellation the way a killed process would.
func canceledCode(emit ports.Emitter) int {
	emitLine(emit, ports.Stderr, "npm: canceled")
	return 130
}
