package npm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pocketnode/core/internal/ports"
	"github.com/pocketnode/core/internal/registry"
	"github.com/pocketnode/core/internal/tarx"
)

// installConcurrency bounds parallel tarball downloads.
const installConcurrency = 4

// NodeModulesDir is the install root inside a project.
const NodeModulesDir = "node_modules"

// BinDir is the bin-stub directory inside node_modules.
const BinDir = ".bin"

// InstallResult summarizes one install run.
type InstallResult struct {
	Installed int
	Skipped   int
	Failed    []string
}

// Installer lays packages out under node_modules and materializes bin
// stubs. Per-package failures are recorded without canceling siblings.
type Installer struct {
	client *registry.Client
	logger ports.Logger
}

// NewInstaller creates an installer backed by the given registry client.
func NewInstaller(client *registry.Client, logger ports.Logger) *Installer {
	return &Installer{client: client, logger: logger}
}

// Install materializes every resolved package into projectDir/node_modules.
// Downloads run in bounded-parallel batches; cancellation is observed at
// batch boundaries and aborts remaining work.
func (i *Installer) Install(ctx context.Context, projectDir string, resolved map[string]*ResolvedPackage) (InstallResult, error) {
	nm := filepath.Join(projectDir, NodeModulesDir)
	binDir := filepath.Join(nm, BinDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return InstallResult{}, fmt.Errorf("failed to create %s: %w", NodeModulesDir, err)
	}

	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu  sync.Mutex
		res InstallResult
	)

	g := &errgroup.Group{}
	g.SetLimit(installConcurrency)

	for _, name := range names {
		rp := resolved[name]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			skipped, err := i.installOne(ctx, nm, binDir, rp)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && errors.Is(err, context.Canceled):
				return err
			case err != nil:
				i.logger.Warn(ctx, "package install failed",
					ports.F("package", rp.Name), ports.F("error", err.Error()))
				res.Failed = append(res.Failed, rp.Name)
			case skipped:
				res.Skipped++
			default:
				res.Installed++
			}
			return nil
		})
	}

	err := g.Wait()
	sort.Strings(res.Failed)
	return res, err
}

// installOne downloads, verifies, and extracts a single package, then
// links its bins. Returns true when the wanted version was already
// installed.
func (i *Installer) installOne(ctx context.Context, nm, binDir string, rp *ResolvedPackage) (bool, error) {
	dest := filepath.Join(nm, filepath.FromSlash(rp.Name))

	if installedVersion(dest) == rp.Version {
		return true, i.linkBins(binDir, rp)
	}

	if rp.Tarball == "" {
		return false, fmt.Errorf("no tarball URL for %s@%s", rp.Name, rp.Version)
	}

	data, err := i.client.DownloadTarball(ctx, rp.Tarball)
	if err != nil {
		return false, fmt.Errorf("failed to download %s: %w", rp.Name, err)
	}

	if !registry.Verify(data, rp.Integrity, rp.Shasum) {
		return false, &registry.IntegrityError{Name: rp.Name, Want: rp.Integrity}
	}

	// Extract into a staging directory, then swap it into place so a
	// canceled install never leaves a half-written package behind.
	staging := filepath.Join(nm, ".staging-"+uuid.NewString())
	defer func() { _ = os.RemoveAll(staging) }()

	if err := tarx.ExtractBytes(ctx, data, staging); err != nil {
		return false, fmt.Errorf("failed to extract %s: %w", rp.Name, err)
	}

	if err := os.RemoveAll(dest); err != nil {
		return false, fmt.Errorf("failed to clear %s: %w", dest, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, err
	}
	if err := os.Rename(staging, dest); err != nil {
		return false, fmt.Errorf("failed to move %s into place: %w", rp.Name, err)
	}

	return false, i.linkBins(binDir, rp)
}

// linkBins writes executable stub files under node_modules/.bin. Stubs are
// used instead of symlinks because some hosts forbid symlink creation; the
// script runner resolves the stub back to its target.
func (i *Installer) linkBins(binDir string, rp *ResolvedPackage) error {
	for binName, target := range rp.Bin {
		binName = path.Base(binName)
		if binName == "" || binName == "." || binName == ".." {
			continue
		}

		rel := "../" + rp.Name + "/" + path.Clean(strings.TrimPrefix(target, "./"))
		stub := fmt.Sprintf("#!/usr/bin/env node\nrequire('%s');\n", rel)

		if err := os.WriteFile(filepath.Join(binDir, binName), []byte(stub), 0o755); err != nil {
			return fmt.Errorf("failed to write bin stub %s: %w", binName, err)
		}
	}
	return nil
}

// installedVersion reads the version of the package installed at dest,
// or "" when nothing valid is installed there.
func installedVersion(dest string) string {
	pkg, err := LoadPackageJSON(dest)
	if err != nil {
		return ""
	}
	return pkg.Version
}

var binStubRe = regexp.MustCompile(`require\('([^']+)'\)`)

// BinStubTarget extracts the require target from a bin stub's contents.
func BinStubTarget(stub []byte) (string, bool) {
	m := binStubRe.FindSubmatch(stub)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}
