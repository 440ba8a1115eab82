package graph

import "strings"

// CircularDependencyError reports a cycle found during graph construction.
// Cycle lists the nodes in cycle order, with the starting node repeated at
// the end to make the loop visually explicit.
type CircularDependencyError struct {
	Cycle []Ref
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, r := range e.Cycle {
		parts[i] = r.String()
	}
	return "CircularDependencyError: " + strings.Join(parts, " -> ")
}
