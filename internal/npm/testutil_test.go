package npm

import (
	"archive/tar"
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/pocketnode/core/internal/adapters/logging"
	"github.com/pocketnode/core/internal/registry"
)

// fakePackage describes one package served by the fake registry.
type fakePackage struct {
	name     string
	versions map[string]map[string]string // version -> dependencies
	distTags map[string]string
	bin      map[string]string // applied to every version
	files    map[string]string // extra tarball files
}

// fakeRegistry serves packuments and tarballs for tests and counts
// tarball downloads.
type fakeRegistry struct {
	srv       *httptest.Server
	downloads atomic.Int64
}

func newFakeRegistry(t *testing.T, pkgs []fakePackage) *fakeRegistry {
	t.Helper()

	f := &fakeRegistry{}
	byName := make(map[string]fakePackage, len(pkgs))
	for _, p := range pkgs {
		byName[p.name] = p
	}

	tarballs := make(map[string][]byte)

	mux := http.NewServeMux()
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[1:]

		if tb, ok := tarballs[name]; ok {
			f.downloads.Add(1)
			_, _ = w.Write(tb)
			return
		}

		p, ok := byName[name]
		if !ok {
			http.NotFound(w, r)
			return
		}

		versions := make(map[string]any, len(p.versions))
		for v, deps := range p.versions {
			tbName := "tarballs/" + p.name + "-" + v + ".tgz"
			if _, built := tarballs[tbName]; !built {
				tarballs[tbName] = buildFakeTarball(t, p, v, deps)
			}
			data := tarballs[tbName]
			sum := sha512.Sum512(data)

			meta := map[string]any{
				"name":         p.name,
				"version":      v,
				"dependencies": deps,
				"dist": map[string]string{
					"tarball":   f.srv.URL + "/" + tbName,
					"integrity": "sha512-" + base64.StdEncoding.EncodeToString(sum[:]),
				},
			}
			if p.bin != nil {
				meta["bin"] = p.bin
			}
			versions[v] = meta
		}

		tags := p.distTags
		if tags == nil {
			tags = map[string]string{"latest": latestOf(p.versions)}
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":      p.name,
			"dist-tags": tags,
			"versions":  versions,
		})
	})

	return f
}

func latestOf(versions map[string]map[string]string) string {
	latest := ""
	for v := range versions {
		if latest == "" || v > latest {
			latest = v
		}
	}
	return latest
}

// buildFakeTarball produces a minimal npm tarball for one version.
func buildFakeTarball(t *testing.T, p fakePackage, version string, deps map[string]string) []byte {
	t.Helper()

	manifest := map[string]any{
		"name":         p.name,
		"version":      version,
		"main":         "index.js",
		"dependencies": deps,
	}
	if p.bin != nil {
		manifest["bin"] = p.bin
	}
	manifestJSON, err := json.Marshal(manifest)
	require.NoError(t, err)

	files := map[string]string{
		"package/package.json": string(manifestJSON),
		"package/index.js":     "module.exports = " + jsonString(p.name) + ";\n",
	}
	for name, body := range p.files {
		files["package/"+name] = body
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(body)),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (f *fakeRegistry) client(t *testing.T) *registry.Client {
	t.Helper()
	return registry.NewClient(
		registry.WithBaseURL(f.srv.URL),
		registry.WithHTTPClient(f.srv.Client()),
		registry.WithMaxRetries(0),
	)
}

func (f *fakeRegistry) manager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(f.client(t), logging.NewNopLogger())
}
