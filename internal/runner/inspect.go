package runner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// maxInspectDepth bounds recursion into nested values.
const maxInspectDepth = 4

// Inspect renders a JS value the way a REPL would: strings bare at the top
// level, objects and arrays recursively with quoted string members.
func Inspect(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}

	exported := v.Export()
	if s, ok := exported.(string); ok {
		return s
	}
	return inspectValue(exported, 0)
}

// inspectValue renders an exported Go value.
func inspectValue(v interface{}, depth int) string {
	if depth > maxInspectDepth {
		return "..."
	}

	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = inspectValue(item, depth+1)
		}
		return "[ " + strings.Join(parts, ", ") + " ]"
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + inspectValue(val[k], depth+1)
		}
		if len(parts) == 0 {
			return "{}"
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	default:
		return fmt.Sprint(val)
	}
}
