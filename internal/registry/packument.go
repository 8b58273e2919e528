package registry

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
)

// Packument is the registry document listing every published version of a
// package plus its dist-tags.
type Packument struct {
	Name     string                 `json:"name"`
	DistTags map[string]string      `json:"dist-tags"`
	Versions map[string]VersionMeta `json:"versions"`
}

// VersionMeta is the metadata for one published version.
type VersionMeta struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Main         string            `json:"main"`
	Scripts      map[string]string `json:"scripts"`
	Dependencies map[string]string `json:"dependencies"`
	Dist         Dist              `json:"dist"`
	Bin          json.RawMessage   `json:"bin"`
}

// Dist describes where and how to fetch the version's tarball.
type Dist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
	Shasum    string `json:"shasum"`
}

// BinMap normalizes the bin field, which is either a single path string or
// a map of command name to path. For the string form the command name is
// the unscoped package name.
func (m *VersionMeta) BinMap() map[string]string {
	if len(m.Bin) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(m.Bin, &single); err == nil {
		name := m.Name
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if name == "" || single == "" {
			return nil
		}
		return map[string]string{name: single}
	}

	var multi map[string]string
	if err := json.Unmarshal(m.Bin, &multi); err == nil {
		return multi
	}
	return nil
}

// VersionKeys returns the published version strings.
func (p *Packument) VersionKeys() []string {
	keys := make([]string, 0, len(p.Versions))
	for k := range p.Versions {
		keys = append(keys, k)
	}
	return keys
}

// encodeName percent-encodes a package name for use in a registry URL.
// The leading "@" of a scope is preserved; the remainder (including the
// scope separator) is escaped.
func encodeName(name string) string {
	if strings.HasPrefix(name, "@") {
		return "@" + url.QueryEscape(name[1:])
	}
	return url.QueryEscape(name)
}

// Scope returns the "@scope" portion of a scoped package name, or "".
func Scope(name string) string {
	if strings.HasPrefix(name, "@") {
		if i := strings.IndexByte(name, '/'); i > 0 {
			return name[:i]
		}
	}
	return ""
}

// TarballName derives the conventional tarball filename for a package,
// e.g. "left-pad-1.3.0.tgz".
func TarballName(name, version string) string {
	return path.Base(name) + "-" + version + ".tgz"
}
