package template

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine evaluates `${...}` expressions embedded in arbitrary YAML-decoded
// values (strings, maps, slices) against a ConfigContext tree.
type Engine struct{}

// New returns a ready-to-use Engine. It holds no state of its own; all
// per-resolution state lives in the pathStack passed through a single
// top-level Resolve call.
func New() *Engine {
	return &Engine{}
}

// Resolve walks value (typically a decoded YAML node) and returns a copy
// with every `${...}` expression replaced by its resolved value. Scalars
// that are entirely one expression keep the expression's native type
// (string/number/bool); scalars containing embedded expressions alongside
// literal text are stringified.
func (e *Engine) Resolve(value interface{}, ctx Context) (interface{}, error) {
	return resolveValue(value, ctx, &pathStack{})
}

// ResolveString is a convenience for resolving a single string field.
func (e *Engine) ResolveString(s string, ctx Context) (interface{}, error) {
	return resolveStringValue(s, ctx, &pathStack{})
}

func resolveValue(value interface{}, ctx Context, stack *pathStack) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return resolveStringValue(v, ctx, stack)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for _, k := range sortedKeys(v) {
			rv, err := resolveValue(v[k], ctx, stack)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			rv, err := resolveValue(item, ctx, stack)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// pathStack tracks the fully-qualified dotted paths currently being walked,
// so a path re-entered before it finishes resolving is a circular
// reference rather than infinite recursion.
type pathStack struct {
	paths []string
}

func (s *pathStack) push(p string) error {
	for _, existing := range s.paths {
		if existing == p {
			cycle := make([]string, 0, len(s.paths)+1)
			cycle = append(cycle, s.paths...)
			cycle = append(cycle, p)
			return &CircularReferenceError{Cycle: cycle}
		}
	}
	s.paths = append(s.paths, p)
	return nil
}

func (s *pathStack) pop() {
	s.paths = s.paths[:len(s.paths)-1]
}

// exprSpan is one balanced `${...}` occurrence within a string.
type exprSpan struct {
	start, end int // end is exclusive, covers the closing brace
	inner      string
}

// scanExprs finds top-level `${...}` spans in s using brace-depth counting,
// so that an expression itself containing nested `${...}` (e.g.
// "${modules.${name}.version}") is captured as a single outer span.
func scanExprs(s string) []exprSpan {
	var spans []exprSpan
	i := 0
	for i < len(s) {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			depth := 1
			j := i + 2
			for j < len(s) && depth > 0 {
				switch s[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				j++
			}
			if depth == 0 {
				spans = append(spans, exprSpan{start: i, end: j, inner: s[i+2 : j-1]})
				i = j
				continue
			}
		}
		i++
	}
	return spans
}

// resolveStringValue resolves all `${...}` expressions in s. If s is
// exactly one expression with no surrounding text, the expression's native
// resolved type is returned; otherwise the result is a string.
func resolveStringValue(s string, ctx Context, stack *pathStack) (interface{}, error) {
	spans := scanExprs(s)
	if len(spans) == 0 {
		return s, nil
	}
	if len(spans) == 1 && spans[0].start == 0 && spans[0].end == len(s) {
		return resolveExpr(spans[0].inner, ctx, stack)
	}
	return interpolateToString(s, ctx, stack)
}

// interpolateToString substitutes every `${...}` span in s with its
// resolved primitive, stringified, always returning a string.
func interpolateToString(s string, ctx Context, stack *pathStack) (string, error) {
	spans := scanExprs(s)
	if len(spans) == 0 {
		return s, nil
	}
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(s[last:sp.start])
		v, err := resolveExpr(sp.inner, ctx, stack)
		if err != nil {
			return "", err
		}
		prim, ok := asPrimitive(v)
		if !ok {
			return "", &NonPrimitiveError{Path: sp.inner}
		}
		b.WriteString(stringify(prim))
		last = sp.end
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// resolveExpr evaluates the inside of a single `${...}`. It first resolves
// any nested expressions to produce a plain dotted-path (or pipeline)
// string, then evaluates that string.
func resolveExpr(expr string, ctx Context, stack *pathStack) (interface{}, error) {
	resolved, err := interpolateToString(expr, ctx, stack)
	if err != nil {
		return nil, err
	}

	if idx := strings.Index(resolved, "|"); idx >= 0 {
		return resolvePipeline(resolved, ctx, stack)
	}
	return resolvePath(strings.TrimSpace(resolved), ctx, stack)
}

// resolvePipeline handles "path | sprigFunc | sprigFunc ..." expressions by
// resolving the leading dotted path to a primitive, then feeding it through
// a text/template pipeline built from Sprig's function map, the same
// fallback the config engine uses for transforms the dotted-path model
// can't express directly (case conversion, defaulting, etc).
func resolvePipeline(expr string, ctx Context, stack *pathStack) (interface{}, error) {
	parts := strings.Split(expr, "|")
	pathPart := strings.TrimSpace(parts[0])

	base, err := resolvePath(pathPart, ctx, stack)
	if err != nil {
		return nil, err
	}

	pipeline := strings.Join(parts[1:], "|")
	tmplSrc := fmt.Sprintf("{{ .V | %s }}", pipeline)

	tmpl, err := template.New("expr").Funcs(sprig.TxtFuncMap()).Parse(tmplSrc)
	if err != nil {
		return nil, &NonPrimitiveError{Path: expr}
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, struct{ V interface{} }{V: base}); err != nil {
		return nil, &NonPrimitiveError{Path: expr}
	}
	return out.String(), nil
}

// resolvePath walks a dotted path segment by segment through ctx, invoking
// LazyCallables and recursively resolving embedded templates in leaf
// strings, until a primitive value is reached.
func resolvePath(path string, ctx Context, stack *pathStack) (interface{}, error) {
	if err := stack.push(path); err != nil {
		return nil, err
	}
	defer stack.pop()

	segments := strings.Split(path, ".")
	var current interface{} = ctx

	for i, seg := range segments {
		if seg == "" || strings.HasPrefix(seg, "_") {
			return nil, &KeyNotFoundError{Path: path}
		}

		curCtx, ok := current.(Context)
		if !ok {
			return nil, &NonPrimitiveError{Path: path}
		}

		v, found := curCtx.Get(seg)
		if !found {
			return nil, &KeyNotFoundError{Path: path}
		}

		if lazy, ok := v.(LazyCallable); ok {
			resolved, err := lazy()
			if err != nil {
				return nil, err
			}
			v = resolved
		}

		if i == len(segments)-1 {
			if str, ok := v.(string); ok {
				interpolated, err := interpolateToString(str, ctx, stack)
				if err != nil {
					return nil, err
				}
				current = interpolated
			} else {
				current = v
			}
		} else {
			current = v
		}
	}

	prim, ok := asPrimitive(current)
	if !ok {
		return nil, &NonPrimitiveError{Path: path}
	}
	return prim, nil
}

func asPrimitive(v interface{}) (interface{}, bool) {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return v, true
	default:
		return nil, false
	}
}

func stringify(v interface{}) string {
	return fmt.Sprint(v)
}
