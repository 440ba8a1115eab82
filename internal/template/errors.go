package template

import "strings"

// KeyNotFoundError reports a dotted path that could not be resolved because
// some segment along the walk was absent (or private, i.e. "_"-prefixed).
type KeyNotFoundError struct {
	Path string
}

func (e *KeyNotFoundError) Error() string {
	return "TemplateError: key not found: " + e.Path
}

// CircularReferenceError reports a cycle discovered while resolving a
// dotted path: Cycle lists the fully-qualified paths in resolution order,
// with the repeated path appended last.
type CircularReferenceError struct {
	Cycle []string
}

func (e *CircularReferenceError) Error() string {
	return "TemplateError: circular reference: " + strings.Join(e.Cycle, " -> ")
}

// NonPrimitiveError reports that a dotted path resolved to something other
// than a string, number, or boolean (e.g. a whole Context or a map).
type NonPrimitiveError struct {
	Path string
}

func (e *NonPrimitiveError) Error() string {
	return "TemplateError: not a primitive value: " + e.Path
}
