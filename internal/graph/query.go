package graph

// Filter selects which refs a query should include; nil means no filtering.
type Filter func(Ref) bool

// GetDependencies returns ref's dependencies. If recursive is false, only
// the immediate dependencies are returned; if true, the full transitive set
// (ref itself excluded). filter, if non-nil, is applied to every candidate.
func (g *Graph) GetDependencies(ref Ref, recursive bool, filter Filter) []Ref {
	return g.walk(ref, recursive, filter, g.deps)
}

// GetDependants is the symmetric query: who depends on ref.
func (g *Graph) GetDependants(ref Ref, recursive bool, filter Filter) []Ref {
	return g.walk(ref, recursive, filter, g.dependants)
}

func (g *Graph) walk(start Ref, recursive bool, filter Filter, edges map[Ref][]Ref) []Ref {
	if !recursive {
		return applyFilter(edges[start], filter)
	}

	visited := make(map[Ref]bool)
	var order []Ref

	var dfs func(ref Ref)
	dfs = func(ref Ref) {
		for _, next := range edges[ref] {
			if visited[next] {
				continue
			}
			visited[next] = true
			order = append(order, next)
			dfs(next)
		}
	}
	dfs(start)
	return applyFilter(order, filter)
}

func applyFilter(refs []Ref, filter Filter) []Ref {
	if filter == nil {
		return refs
	}
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if filter(r) {
			out = append(out, r)
		}
	}
	return out
}

// GetDependenciesForMany unions GetDependencies across every ref in refs.
func (g *Graph) GetDependenciesForMany(refs []Ref, recursive bool, filter Filter) []Ref {
	return g.unionWalk(refs, recursive, filter, g.deps)
}

// GetDependantsForMany unions GetDependants across every ref in refs.
func (g *Graph) GetDependantsForMany(refs []Ref, recursive bool, filter Filter) []Ref {
	return g.unionWalk(refs, recursive, filter, g.dependants)
}

func (g *Graph) unionWalk(refs []Ref, recursive bool, filter Filter, edges map[Ref][]Ref) []Ref {
	seen := make(map[Ref]bool)
	var out []Ref
	for _, ref := range refs {
		for _, r := range g.walk(ref, recursive, filter, edges) {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// ModulesForRelations returns the unique set of module keys owning any of
// the given refs.
func (g *Graph) ModulesForRelations(refs []Ref) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ref := range refs {
		if n, ok := g.nodes[ref]; ok && !seen[n.module] {
			seen[n.module] = true
			out = append(out, n.module)
		}
	}
	return out
}

// WithDependantModules returns modules plus every module reachable by
// following dependant edges from any node owned by one of modules, used by
// the watcher to decide which modules a change must redrive.
func (g *Graph) WithDependantModules(modules []string) []string {
	inSet := make(map[string]bool, len(modules))
	for _, m := range modules {
		inSet[m] = true
	}

	var roots []Ref
	for ref, n := range g.nodes {
		if inSet[n.module] {
			roots = append(roots, ref)
		}
	}

	dependants := g.GetDependantsForMany(roots, true, nil)
	for _, ref := range dependants {
		if n, ok := g.nodes[ref]; ok {
			inSet[n.module] = true
		}
	}

	out := make([]string, 0, len(inSet))
	for m := range inSet {
		out = append(out, m)
	}
	return out
}
