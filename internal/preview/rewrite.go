package preview

import (
	"regexp"
	"strings"
)

// RewriteModules rewrites ES-module directives into common-module form:
// imports become require expressions and exports become writes to
// module.exports. The transform is line-oriented and conservative; lines
// that do not match a directive pass through untouched.
func RewriteModules(src string) string {
	lines := strings.Split(src, "\n")
	out := make([]string, 0, len(lines)+8)
	var tail []string // export-table writes appended at the end

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		// Accumulate a multi-line import clause into one logical line.
		if strings.HasPrefix(trimmed, "import") && !strings.Contains(trimmed, "from") &&
			strings.Contains(trimmed, "{") && !strings.Contains(trimmed, "}") {
			joined := trimmed
			for i+1 < len(lines) {
				i++
				joined += " " + strings.TrimSpace(lines[i])
				if strings.Contains(lines[i], "from") {
					break
				}
			}
			trimmed = joined
			line = joined
		}

		if rewritten, exports, ok := rewriteLine(line, trimmed); ok {
			out = append(out, rewritten...)
			tail = append(tail, exports...)
			continue
		}
		out = append(out, line)
	}

	out = append(out, tail...)
	return strings.Join(out, "\n")
}

var (
	importFromRe = regexp.MustCompile(`^import\s+(.+?)\s+from\s+['"]([^'"]+)['"];?\s*$`)
	importBareRe = regexp.MustCompile(`^import\s+['"]([^'"]+)['"];?\s*$`)

	exportDefaultFnRe    = regexp.MustCompile(`^export\s+default\s+(async\s+)?function\s+([A-Za-z_$][\w$]*)`)
	exportDefaultClassRe = regexp.MustCompile(`^export\s+default\s+class\s+([A-Za-z_$][\w$]*)`)
	exportDeclRe         = regexp.MustCompile(`^export\s+(const|let|var)\s+([A-Za-z_$][\w$]*)`)
	exportFnRe           = regexp.MustCompile(`^export\s+(async\s+)?function\s+([A-Za-z_$][\w$]*)`)
	exportClassRe        = regexp.MustCompile(`^export\s+class\s+([A-Za-z_$][\w$]*)`)
	exportListRe         = regexp.MustCompile(`^export\s*\{([^}]*)\};?\s*$`)
)

// rewriteLine handles one logical line. Returns the replacement lines,
// any export-table writes to append at the end of the module, and whether
// the line was a directive.
func rewriteLine(line, trimmed string) ([]string, []string, bool) {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]

	// import ... from 'M'
	if m := importFromRe.FindStringSubmatch(trimmed); m != nil {
		return []string{indent + rewriteImportClause(m[1], m[2])}, nil, true
	}

	// import 'M'
	if m := importBareRe.FindStringSubmatch(trimmed); m != nil {
		return []string{indent + "require(" + jsonQuote(m[1]) + ");"}, nil, true
	}

	// export default function Name(...) {...}
	if m := exportDefaultFnRe.FindStringSubmatch(trimmed); m != nil {
		decl := strings.TrimPrefix(trimmed, "export default ")
		return []string{indent + decl},
			[]string{"module.exports.default = " + m[2] + ";"}, true
	}

	// export default class Name {...}
	if m := exportDefaultClassRe.FindStringSubmatch(trimmed); m != nil {
		decl := strings.TrimPrefix(trimmed, "export default ")
		return []string{indent + decl},
			[]string{"module.exports.default = " + m[1] + ";"}, true
	}

	// export default EXPR — the assignment covers the statement's first
	// line; the expression's continuation lines pass through after it.
	if strings.HasPrefix(trimmed, "export default ") {
		expr := strings.TrimPrefix(trimmed, "export default ")
		return []string{indent + "module.exports.default = " + expr}, nil, true
	}

	// export const|let|var NAME = ...
	if m := exportDeclRe.FindStringSubmatch(trimmed); m != nil {
		decl := strings.TrimPrefix(trimmed, "export ")
		return []string{indent + decl},
			[]string{"module.exports." + m[2] + " = " + m[2] + ";"}, true
	}

	// export function NAME / export class NAME
	if m := exportFnRe.FindStringSubmatch(trimmed); m != nil {
		decl := strings.TrimPrefix(trimmed, "export ")
		return []string{indent + decl},
			[]string{"module.exports." + m[2] + " = " + m[2] + ";"}, true
	}
	if m := exportClassRe.FindStringSubmatch(trimmed); m != nil {
		decl := strings.TrimPrefix(trimmed, "export ")
		return []string{indent + decl},
			[]string{"module.exports." + m[1] + " = " + m[1] + ";"}, true
	}

	// export { A, B as C }
	if m := exportListRe.FindStringSubmatch(trimmed); m != nil {
		var tail []string
		for _, item := range strings.Split(m[1], ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			local, exported := item, item
			if parts := strings.SplitN(item, " as ", 2); len(parts) == 2 {
				local = strings.TrimSpace(parts[0])
				exported = strings.TrimSpace(parts[1])
			}
			tail = append(tail, "module.exports."+exported+" = "+local+";")
		}
		return []string{}, tail, true
	}

	return nil, nil, false
}

// rewriteImportClause turns an import clause into require declarations.
func rewriteImportClause(clause, module string) string {
	clause = strings.TrimSpace(clause)
	req := "require(" + jsonQuote(module) + ")"

	// import * as X from 'M'
	if strings.HasPrefix(clause, "*") {
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(clause, "*")), "as"))
		return "const " + name + " = " + req + ";"
	}

	// import {A, B as C} from 'M'
	if strings.HasPrefix(clause, "{") {
		return "const " + braceToDestructure(clause) + " = " + req + ";"
	}

	// import X from 'M'  /  import X, {A} from 'M'
	if i := strings.Index(clause, ","); i >= 0 {
		def := strings.TrimSpace(clause[:i])
		rest := strings.TrimSpace(clause[i+1:])
		lines := "const " + def + " = " + defaultOf(req) + ";"
		if strings.HasPrefix(rest, "{") {
			lines += " const " + braceToDestructure(rest) + " = " + req + ";"
		} else if strings.HasPrefix(rest, "*") {
			name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(rest, "*")), "as"))
			lines += " const " + name + " = " + req + ";"
		}
		return lines
	}

	return "const " + clause + " = " + defaultOf(req) + ";"
}

// defaultOf wraps a require expression to prefer the default export.
func defaultOf(req string) string {
	return "((m) => m && m.default !== undefined ? m.default : m)(" + req + ")"
}

// braceToDestructure converts an import binding list into an object
// destructuring pattern: "as" becomes ":".
func braceToDestructure(clause string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(clause), "{"), "}")
	parts := strings.Split(inner, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if kv := strings.SplitN(p, " as ", 2); len(kv) == 2 {
			p = strings.TrimSpace(kv[0]) + ": " + strings.TrimSpace(kv[1])
		}
		parts[i] = p
	}
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			clean = append(clean, p)
		}
	}
	return "{" + strings.Join(clean, ", ") + "}"
}
