package graph

import (
	"sort"
	"strings"

	"grove/internal/config"
	"grove/internal/template"
)

// Graph is an immutable, typed dependency graph of a project's modules. It
// is safe for concurrent reads once New returns successfully.
type Graph struct {
	nodes      map[Ref]*node
	deps       map[Ref][]Ref
	dependants map[Ref][]Ref
}

// New builds a Graph from the project's fully-resolved modules. It
// validates global name uniqueness, resolves every declared dependency to a
// known node, and rejects the result if it contains a cycle.
func New(modules []config.Module) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[Ref]*node),
		deps:       make(map[Ref][]Ref),
		dependants: make(map[Ref][]Ref),
	}

	// registry maps a globally-unique service/task name to its Ref, used to
	// resolve ServiceDecl/TaskDecl/TestDecl DependsOn entries regardless of
	// which kind declared the name (service∩task=∅ is enforced below).
	registry := make(map[string]Ref)

	byName := make(map[string]Ref, len(modules)) // module.Name -> its build Ref
	for _, m := range modules {
		buildRef := Ref{Kind: KindBuild, Name: m.Key()}
		if err := g.addNode(buildRef, m.Key(), nil); err != nil {
			return nil, err
		}
		byName[m.Name] = buildRef
	}

	for _, m := range modules {
		for _, svc := range m.Services {
			ref := Ref{Kind: KindService, Name: svc.Name}
			if existing, ok := registry[svc.Name]; ok {
				return nil, config.NewConfigError(svc.Name, "service/task name %q already declared as %s", svc.Name, existing.String())
			}
			registry[svc.Name] = ref
		}
		for _, task := range m.Tasks {
			ref := Ref{Kind: KindTask, Name: task.Name}
			if existing, ok := registry[task.Name]; ok {
				return nil, config.NewConfigError(task.Name, "service/task name %q already declared as %s", task.Name, existing.String())
			}
			registry[task.Name] = ref
		}
	}

	for _, m := range modules {
		buildRef := Ref{Kind: KindBuild, Name: m.Key()}

		seenDep := make(map[Ref]bool)
		var buildDeps []Ref
		for _, bd := range m.Build.Dependencies {
			depRef := Ref{Kind: KindBuild, Name: bd.Name}
			if _, ok := g.nodes[depRef]; !ok {
				return nil, config.NewConfigError(m.Key(), "build dependency %q does not resolve to a known module", bd.Name)
			}
			if !seenDep[depRef] {
				seenDep[depRef] = true
				buildDeps = append(buildDeps, depRef)
			}
		}
		for _, dep := range implicitBuildDeps(m, byName) {
			if dep == buildRef || seenDep[dep] {
				continue
			}
			seenDep[dep] = true
			buildDeps = append(buildDeps, dep)
		}
		g.nodes[buildRef].dependsOn = buildDeps

		for _, svc := range m.Services {
			ref := Ref{Kind: KindService, Name: svc.Name}
			deps, err := resolveDeclared(svc.DependsOn, registry, buildRef, svc.Name)
			if err != nil {
				return nil, err
			}
			if err := g.addNode(ref, m.Key(), deps); err != nil {
				return nil, err
			}
		}
		for _, task := range m.Tasks {
			ref := Ref{Kind: KindTask, Name: task.Name}
			deps, err := resolveDeclared(task.DependsOn, registry, buildRef, task.Name)
			if err != nil {
				return nil, err
			}
			if err := g.addNode(ref, m.Key(), deps); err != nil {
				return nil, err
			}
		}
		for _, test := range m.Tests {
			ref := Ref{Kind: KindTest, Name: m.Key() + "." + test.Name}
			deps, err := resolveDeclared(test.DependsOn, registry, buildRef, ref.Name)
			if err != nil {
				return nil, err
			}
			if err := g.addNode(ref, m.Key(), deps); err != nil {
				return nil, err
			}
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CircularDependencyError{Cycle: cycle}
	}

	g.indexDependants()
	return g, nil
}

// implicitBuildDeps returns the build Refs m implicitly depends on via
// "modules.<name>.*" template expressions anywhere in its Build.Command or
// any Service/Task/Test/Module Spec. A module referencing another module's
// outputs this way has a real build-order dependency on it even without an
// explicit build.dependencies entry — this derives that edge from the raw,
// unresolved template text (template.CollectReferences only needs to find
// the referenced paths, not evaluate them, so this works before any module
// has been built). byName maps a module's bare Name to its build Ref.
func implicitBuildDeps(m config.Module, byName map[string]Ref) []Ref {
	var refs []string
	refs = append(refs, template.CollectReferences(m.Build.Command)...)
	refs = append(refs, template.CollectReferences(m.Spec)...)
	for _, s := range m.Services {
		refs = append(refs, template.CollectReferences(s.Spec)...)
	}
	for _, t := range m.Tasks {
		refs = append(refs, template.CollectReferences(t.Spec)...)
	}
	for _, t := range m.Tests {
		refs = append(refs, template.CollectReferences(t.Spec)...)
	}

	seen := make(map[Ref]bool)
	var out []Ref
	for _, ref := range refs {
		segs := strings.SplitN(ref, ".", 3)
		if len(segs) < 2 || segs[0] != "modules" {
			continue
		}
		dep, ok := byName[segs[1]]
		if !ok || seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
	}
	return out
}

func resolveDeclared(names []string, registry map[string]Ref, buildRef Ref, owner string) ([]Ref, error) {
	deps := []Ref{buildRef}
	for _, name := range names {
		ref, ok := registry[name]
		if !ok {
			return nil, config.NewConfigError(owner, "dependency %q does not resolve to a known service or task", name)
		}
		deps = append(deps, ref)
	}
	return deps, nil
}

func (g *Graph) addNode(ref Ref, module string, deps []Ref) error {
	if _, exists := g.nodes[ref]; exists {
		return config.NewConfigError(ref.Name, "node %s declared more than once", ref.String())
	}
	g.nodes[ref] = &node{ref: ref, module: module, dependsOn: deps}
	return nil
}

func (g *Graph) indexDependants() {
	for ref, n := range g.nodes {
		g.deps[ref] = append([]Ref(nil), n.dependsOn...)
		for _, dep := range n.dependsOn {
			g.dependants[dep] = append(g.dependants[dep], ref)
		}
	}
}

// colour is used by the cycle-detection DFS.
type colour int

const (
	white colour = iota
	grey
	black
)

// findCycle runs a three-colour DFS over the dependency edges and returns
// the first cycle found as an ordered path (with the repeated node
// appended at the end), or nil if the graph is acyclic.
func (g *Graph) findCycle() []Ref {
	colours := make(map[Ref]colour, len(g.nodes))
	var stack []Ref

	var visit func(ref Ref) []Ref
	visit = func(ref Ref) []Ref {
		colours[ref] = grey
		stack = append(stack, ref)

		for _, dep := range g.nodes[ref].dependsOn {
			switch colours[dep] {
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			case grey:
				cycle := make([]Ref, 0, len(stack)+1)
				start := 0
				for i, r := range stack {
					if r == dep {
						start = i
						break
					}
				}
				cycle = append(cycle, stack[start:]...)
				cycle = append(cycle, dep)
				return cycle
			}
		}

		stack = stack[:len(stack)-1]
		colours[ref] = black
		return nil
	}

	for _, ref := range g.sortedRefs() {
		if colours[ref] == white {
			if cycle := visit(ref); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func (g *Graph) sortedRefs() []Ref {
	refs := make([]Ref, 0, len(g.nodes))
	for ref := range g.nodes {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}

// Module returns the module key owning ref, or "" if ref is unknown.
func (g *Graph) Module(ref Ref) string {
	if n, ok := g.nodes[ref]; ok {
		return n.module
	}
	return ""
}

// Has reports whether ref names a node in the graph.
func (g *Graph) Has(ref Ref) bool {
	_, ok := g.nodes[ref]
	return ok
}

// Refs returns every node in the graph, sorted by kind then name, for
// callers that need to enumerate the whole graph (e.g. to print it or to
// derive a task list).
func (g *Graph) Refs() []Ref {
	return g.sortedRefs()
}
