package preview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBundleAppEntry(t *testing.T) {
	files := map[string][]byte{
		"/App.tsx": []byte(`export default function App(){ return <h1 className="t">hi</h1> }`),
	}

	html := BuildBundle(files)

	assert.Contains(t, html, `__pnModules["/App.tsx"]`)
	assert.Contains(t, html, `React.createElement("h1", {className:"t"}, "hi")`)
	assert.NotContains(t, html, "<h1")
	// The entry script creates a root and renders App.
	assert.Contains(t, html, "createRoot(document.getElementById('root'))")
	assert.Contains(t, html, "__pnRoot.render(React.createElement(__pnApp))")
}

func TestBuildBundleIndexEntryWins(t *testing.T) {
	files := map[string][]byte{
		"/App.jsx":   []byte("export default function App(){ return null }"),
		"/index.jsx": []byte("console.log('entry');"),
	}

	html := BuildBundle(files)
	assert.Contains(t, html, `__pnRequire("/index.jsx")`)
	// Index entries render themselves; no synthesized root.
	assert.NotContains(t, html, "__pnRoot.render")
}

func TestBuildBundleCSSConcatenated(t *testing.T) {
	files := map[string][]byte{
		"/a.css":    []byte("body { margin: 0; }"),
		"/b.css":    []byte(".t { color: red; }"),
		"/index.js": []byte("1;"),
	}

	html := BuildBundle(files)
	assert.Contains(t, html, "body { margin: 0; }")
	assert.Contains(t, html, ".t { color: red; }")
	// Deterministic order: a.css before b.css.
	assert.Less(t, strings.Index(html, "margin"), strings.Index(html, "color"))
}

func TestBuildBundleJSONModule(t *testing.T) {
	files := map[string][]byte{
		"/data.json": []byte(`{"n": 1}`),
		"/index.js":  []byte("const d = require('./data.json');"),
	}

	html := BuildBundle(files)
	assert.Contains(t, html, `__pnModules["/data.json"]`)
	assert.Contains(t, html, `module.exports = {"n": 1};`)
}

func TestBuildBundleDeterministic(t *testing.T) {
	files := map[string][]byte{
		"/App.tsx":   []byte("export default function App(){ return <p>x</p> }"),
		"/style.css": []byte("p { color: blue; }"),
		"/util.js":   []byte("export const n = 1;"),
	}

	first := BuildBundle(files)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildBundle(files))
	}
}

func TestPickEntry(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{
			name:  "index beats app",
			paths: []string{"/App.tsx", "/index.js"},
			want:  "/index.js",
		},
		{
			name:  "app when no index",
			paths: []string{"/App.tsx", "/util.js"},
			want:  "/App.tsx",
		},
		{
			name:  "first file fallback",
			paths: []string{"/a.js", "/b.js"},
			want:  "/a.js",
		},
		{
			name:  "empty",
			paths: nil,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickEntry(tt.paths))
		})
	}
}
