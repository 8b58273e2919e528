package npm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LockfileName is the lockfile filename.
const LockfileName = "package-lock.json"

// Lockfile is the v1-style lockfile written after a successful install.
type Lockfile struct {
	Name            string               `json:"name,omitempty"`
	Version         string               `json:"version,omitempty"`
	LockfileVersion int                  `json:"lockfileVersion"`
	Dependencies    map[string]LockEntry `json:"dependencies"`
}

// LockEntry pins one resolved package.
type LockEntry struct {
	Version   string            `json:"version"`
	Resolved  string            `json:"resolved"`
	Integrity string            `json:"integrity,omitempty"`
	Requires  map[string]string `json:"requires,omitempty"`
}

// BuildLockfile derives a lockfile from a resolution result.
func BuildLockfile(pkg *PackageJSON, resolved map[string]*ResolvedPackage) *Lockfile {
	lf := &Lockfile{
		Name:            pkg.Name,
		Version:         pkg.Version,
		LockfileVersion: 1,
		Dependencies:    make(map[string]LockEntry, len(resolved)),
	}

	for name, rp := range resolved {
		integrity := rp.Integrity
		if integrity == "" && rp.Shasum != "" {
			integrity = "sha1-" + rp.Shasum
		}
		entry := LockEntry{
			Version:   rp.Version,
			Resolved:  rp.Tarball,
			Integrity: integrity,
		}
		if len(rp.Dependencies) > 0 {
			entry.Requires = rp.Dependencies
		}
		lf.Dependencies[name] = entry
	}
	return lf
}

// ReadLockfile loads the lockfile from a project directory.
func ReadLockfile(dir string) (*Lockfile, error) {
	data, err := os.ReadFile(filepath.Join(dir, LockfileName))
	if err != nil {
		return nil, err
	}

	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", LockfileName, err)
	}
	return &lf, nil
}

// WriteLockfile atomically writes the lockfile to a project directory.
func WriteLockfile(dir string, lf *Lockfile) error {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	path := filepath.Join(dir, LockfileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace lockfile: %w", err)
	}
	return nil
}
