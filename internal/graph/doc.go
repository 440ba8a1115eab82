// Package graph builds the ConfigGraph: an immutable, typed dependency
// graph over a project's modules, derived from their build dependencies and
// declared service/task/test relations. Construction validates name
// uniqueness, resolves every declared dependency to a known node, and
// rejects cycles via three-colour DFS, reporting the offending cycle.
package graph
