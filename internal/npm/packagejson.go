// Package npm implements the npm-lite package manager: dependency
// resolution against a registry, node_modules installation, and the
// package.json / package-lock.json file formats.
package npm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PackageJSONName is the manifest filename.
const PackageJSONName = "package.json"

// PackageJSON is the subset of the npm manifest the core understands.
type PackageJSON struct {
	Name            string            `json:"name,omitempty"`
	Version         string            `json:"version,omitempty"`
	Description     string            `json:"description,omitempty"`
	Main            string            `json:"main,omitempty"`
	Scripts         map[string]string `json:"scripts,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Bin             json.RawMessage   `json:"bin,omitempty"`
}

// LoadPackageJSON reads the manifest from a project directory.
func LoadPackageJSON(dir string) (*PackageJSON, error) {
	data, err := os.ReadFile(filepath.Join(dir, PackageJSONName))
	if err != nil {
		return nil, err
	}

	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", PackageJSONName, err)
	}
	return &pkg, nil
}

// Save writes the manifest back to a project directory.
func (p *PackageJSON) Save(dir string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(filepath.Join(dir, PackageJSONName), data, 0o644)
}

// DefaultPackageJSON returns the manifest `npm init` writes.
func DefaultPackageJSON(name string) *PackageJSON {
	return &PackageJSON{
		Name:    name,
		Version: "1.0.0",
		Main:    "index.js",
		Scripts: map[string]string{
			"test": `echo "Error: no test specified" && exit 1`,
		},
	}
}

// AllDependencies merges runtime and (unless production) dev dependencies.
func (p *PackageJSON) AllDependencies(production bool) map[string]string {
	deps := make(map[string]string, len(p.Dependencies)+len(p.DevDependencies))
	for name, rng := range p.Dependencies {
		deps[name] = rng
	}
	if !production {
		for name, rng := range p.DevDependencies {
			deps[name] = rng
		}
	}
	return deps
}
