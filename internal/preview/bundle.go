package preview

import (
	"strings"

	"github.com/pocketnode/core/internal/project"
)

// BundleExtensions are the file types included in the preview bundle.
var BundleExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".css": true, ".json": true,
}

// entryPriority lists entry candidates in preference order.
var entryPriority = []string{
	"/index.js", "/index.jsx", "/index.ts", "/index.tsx",
	"/App.js", "/App.jsx", "/App.tsx", "/App.ts",
}

// BuildBundle assembles the self-contained preview HTML document from a
// project snapshot. The output is deterministic: the same file set always
// produces byte-identical HTML.
func BuildBundle(files map[string][]byte) string {
	paths := project.SortedPaths(files)

	var css strings.Builder
	var modules strings.Builder
	var codePaths []string

	for _, path := range paths {
		src := string(files[path])
		ext := strings.ToLower(path[strings.LastIndexByte(path, '.')+1:])

		switch ext {
		case "css":
			css.WriteString(src)
			if !strings.HasSuffix(src, "\n") {
				css.WriteString("\n")
			}
		case "json":
			modules.WriteString("__pnModules[" + jsonQuote(path) + "] = function (require, module, exports) {\n")
			modules.WriteString("module.exports = " + strings.TrimSpace(src) + ";\n};\n")
			codePaths = append(codePaths, path)
		case "js", "jsx", "ts", "tsx":
			rewritten := TransformJSX(RewriteModules(src))
			modules.WriteString("__pnModules[" + jsonQuote(path) + "] = function (require, module, exports) {\n")
			modules.WriteString(rewritten)
			if !strings.HasSuffix(rewritten, "\n") {
				modules.WriteString("\n")
			}
			modules.WriteString("};\n")
			codePaths = append(codePaths, path)
		}
	}

	entry := pickEntry(codePaths)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<title>Preview</title>\n")
	b.WriteString("<script crossorigin src=\"https://unpkg.com/react@18/umd/react.production.min.js\"></script>\n")
	b.WriteString("<script crossorigin src=\"https://unpkg.com/react-dom@18/umd/react-dom.production.min.js\"></script>\n")
	b.WriteString("<style>\n")
	b.WriteString(css.String())
	b.WriteString("</style>\n</head>\n<body>\n<div id=\"root\"></div>\n<script>\n")
	b.WriteString("var __pnModules = {};\n")
	b.WriteString(modules.String())
	b.WriteString(loaderJS)
	b.WriteString(entryScript(entry))
	b.WriteString(pollJS)
	b.WriteString("</script>\n</body>\n</html>\n")
	return b.String()
}

// pickEntry selects the entry module: index.* first, then App.*, then the
// first registered module.
func pickEntry(codePaths []string) string {
	registered := make(map[string]bool, len(codePaths))
	for _, p := range codePaths {
		registered[p] = true
	}
	for _, candidate := range entryPriority {
		if registered[candidate] {
			return candidate
		}
	}
	if len(codePaths) > 0 {
		return codePaths[0]
	}
	return ""
}

// entryScript renders the bundle's bootstrap. App-style entries get a
// synthesized root render; index-style entries render themselves.
func entryScript(entry string) string {
	if entry == "" {
		return "// no entry module found\n"
	}

	var b strings.Builder
	b.WriteString("try {\n")
	b.WriteString("var __pnEntry = __pnRequire(" + jsonQuote(entry) + ");\n")
	if strings.HasPrefix(entry, "/App.") {
		b.WriteString("var __pnApp = __pnEntry && (__pnEntry.default || __pnEntry.App) || __pnEntry;\n")
		b.WriteString("var __pnRoot = ReactDOM.createRoot(document.getElementById('root'));\n")
		b.WriteString("__pnRoot.render(React.createElement(__pnApp));\n")
	}
	b.WriteString("} catch (e) {\n__pnReportError(e);\n}\n")
	return b.String()
}
