package template

import "strings"

// CollectReferences scans value (a decoded YAML node) for every `${...}`
// expression and returns the distinct dotted paths referenced, in first-seen
// order. ConfigGraph uses this to derive implicit dependency edges from
// template expressions (e.g. a module referencing "modules.shared.outputs.x"
// implicitly depends on "shared") without having to fully resolve them.
func CollectReferences(value interface{}) []string {
	seen := make(map[string]bool)
	var refs []string

	var walk func(v interface{})
	walk = func(v interface{}) {
		switch vv := v.(type) {
		case string:
			collectFromString(vv, seen, &refs)
		case map[string]interface{}:
			for _, k := range sortedKeys(vv) {
				walk(vv[k])
			}
		case []interface{}:
			for _, item := range vv {
				walk(item)
			}
		}
	}
	walk(value)
	return refs
}

func collectFromString(s string, seen map[string]bool, refs *[]string) {
	for _, sp := range scanExprs(s) {
		collectFromExpr(sp.inner, seen, refs)
	}
}

func collectFromExpr(expr string, seen map[string]bool, refs *[]string) {
	for _, sp := range scanExprs(expr) {
		collectFromExpr(sp.inner, seen, refs)
	}

	pathPart := expr
	if idx := strings.Index(pathPart, "|"); idx >= 0 {
		pathPart = pathPart[:idx]
	}
	pathPart = strings.TrimSpace(pathPart)
	if pathPart == "" || strings.Contains(pathPart, "${") {
		return
	}
	if !seen[pathPart] {
		seen[pathPart] = true
		*refs = append(*refs, pathPart)
	}
}
