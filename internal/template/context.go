package template

import (
	"os"
	"runtime"
	"sort"
)

// LazyCallable is resolved on demand, exactly once per path-walk, so that
// expensive lookups (provider outputs, service outputs) are only ever
// evaluated when actually referenced.
type LazyCallable func() (interface{}, error)

// Context is one layer of the ConfigContext tree. Get looks up a single
// path segment and returns either a primitive (string/int/float64/bool), a
// nested Context, or a LazyCallable; ok is false if the segment is absent.
// Private ("_"-prefixed) segments are rejected by the engine before Get is
// called.
type Context interface {
	Get(key string) (value interface{}, ok bool)
}

// mapContext is a Context backed by a plain map, used for the leaves of the
// tree (variables, static outputs) where no special lazy behaviour is
// needed.
type mapContext map[string]interface{}

func (m mapContext) Get(key string) (interface{}, bool) {
	v, ok := m[key]
	return v, ok
}

// funcContext is a Context whose children are computed on lookup, used for
// namespaces like "providers.<name>" or "modules.<name>" where the set of
// valid keys is determined by a registry rather than a fixed map.
type funcContext func(key string) (interface{}, bool)

func (f funcContext) Get(key string) (interface{}, bool) { return f(key) }

// layeredContext checks its own keys first, falling back to parent. This is
// how ProviderContext "extends" ProjectContext, and ModuleContext "extends"
// ProviderContext, without embedding concrete structs into each other.
type layeredContext struct {
	parent Context
	own    Context
}

func (l layeredContext) Get(key string) (interface{}, bool) {
	if v, ok := l.own.Get(key); ok {
		return v, true
	}
	if l.parent != nil {
		return l.parent.Get(key)
	}
	return nil, false
}

// NewProjectContext builds the root ConfigContext layer: local.env (process
// environment) and local.platform (GOOS).
func NewProjectContext(env map[string]string) Context {
	if env == nil {
		env = envFromProcess()
	}
	local := mapContext{
		"env":      mapContext(stringMapToAny(env)),
		"platform": runtime.GOOS,
	}
	return mapContext{"local": local}
}

func envFromProcess() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

func stringMapToAny(in map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ProviderOutputs is implemented by anything that can lazily produce a
// provider's output values (typically backed by internal/provider).
type ProviderOutputs interface {
	GetOutputs() (map[string]interface{}, error)
}

// NewProviderContext layers environment.name, providers.<name> (lazy), and
// variables.* over parent.
func NewProviderContext(parent Context, environmentName string, providers map[string]ProviderOutputs, variables map[string]interface{}) Context {
	own := mapContext{
		"environment": mapContext{"name": environmentName},
		"providers": funcContext(func(name string) (interface{}, bool) {
			p, ok := providers[name]
			if !ok {
				return nil, false
			}
			return LazyCallable(func() (interface{}, error) {
				outputs, err := p.GetOutputs()
				if err != nil {
					return nil, err
				}
				return mapContext(outputs), nil
			}), true
		}),
		"variables": mapContext(variables),
	}
	return layeredContext{parent: parent, own: own}
}

// ServiceEntry describes one running service owned by a module, for the
// "modules.<name>.services.<name>.outputs" namespace.
type ServiceEntry struct {
	Outputs map[string]interface{}
}

// ModuleEntry describes one module's resolved state, for the
// "modules.<name>" namespace.
type ModuleEntry struct {
	Path      string
	BuildPath string
	Outputs   map[string]interface{}
	Version   string
	Services  map[string]ServiceEntry
}

func (m ModuleEntry) context() Context {
	services := make(mapContext, len(m.Services))
	for name, svc := range m.Services {
		outputs := svc.Outputs
		services[name] = mapContext{
			"outputs": LazyCallable(func() (interface{}, error) {
				return mapContext(outputs), nil
			}),
		}
	}
	return mapContext{
		"path":      m.Path,
		"buildPath": m.BuildPath,
		"outputs":   mapContext(m.Outputs),
		"version":   m.Version,
		"services":  mapContext(services),
	}
}

// NewModuleContext layers modules.<name> over parent.
func NewModuleContext(parent Context, modules map[string]ModuleEntry) Context {
	own := mapContext{
		"modules": funcContext(func(name string) (interface{}, bool) {
			entry, ok := modules[name]
			if !ok {
				return nil, false
			}
			return entry.context(), true
		}),
	}
	return layeredContext{parent: parent, own: own}
}

// sortedKeys is a small helper used by collect.go and engine.go for
// deterministic iteration over context-backing maps.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
