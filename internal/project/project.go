// Package project defines the on-disk layout shared by the subsystems:
// the data directory, per-project directories, and tree snapshots with the
// skip rules the sync and preview layers agree on.
package project

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dirs locates the core's data directories.
type Dirs struct {
	// DataDir is the root of all core-owned state.
	DataDir string
	// ProjectsDir holds one subdirectory per project.
	ProjectsDir string
}

// NewDirs derives the standard layout under a data directory.
func NewDirs(dataDir string) Dirs {
	return Dirs{
		DataDir:     dataDir,
		ProjectsDir: filepath.Join(dataDir, "projects"),
	}
}

// Ensure creates the directories.
func (d Dirs) Ensure() error {
	return os.MkdirAll(d.ProjectsDir, 0o755)
}

// TextExtensions are the file types synced back to the UI.
var TextExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".json": true, ".css": true, ".html": true, ".md": true, ".txt": true,
}

// SkipDir reports whether a directory is excluded from walks: dependency
// trees, VCS metadata, caches, and anything dot-prefixed.
func SkipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return name == "node_modules" || name == ".git" || name == ".cache"
}

// Snapshot reads a project tree into memory, keyed by slash-separated
// paths rooted at "/". Only files whose extension is in exts are included;
// a nil exts includes everything. The walk observes ctx at every
// iteration.
func Snapshot(ctx context.Context, dir string, exts map[string]bool) (map[string][]byte, error) {
	files := make(map[string][]byte)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		if d.IsDir() {
			if path != dir && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if exts != nil && !exts[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		files["/"+filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// SortedPaths returns the snapshot's keys in deterministic order.
func SortedPaths(files map[string][]byte) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
