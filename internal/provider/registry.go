package provider

import (
	"context"
	"sync"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"grove/pkg/logging"
)

type dispatchKey struct {
	actionType string
	moduleType string
	provider   string
}

type loadedPlugin struct {
	name       string
	config     map[string]interface{}
	descriptor *PluginDescriptor
}

// Registry is the ProviderRegistry: a name-keyed table of loaded plugins
// and the action dispatch table their handlers populate.
type Registry struct {
	mu sync.RWMutex

	factories map[string]Factory
	loaded    map[string]*loadedPlugin

	dispatch       map[dispatchKey]ActionHandler
	schemas        map[dispatchKey]ActionSchema
	lastRegistered map[string]string // "actionType|moduleType" -> provider name
	defaults       map[string]ActionHandler

	validate *validator.Validate
}

// NewRegistry returns an empty Registry with the default provider-
// independent fallback handlers installed.
func NewRegistry() *Registry {
	r := &Registry{
		factories:      make(map[string]Factory),
		loaded:         make(map[string]*loadedPlugin),
		dispatch:       make(map[dispatchKey]ActionHandler),
		schemas:        make(map[dispatchKey]ActionSchema),
		lastRegistered: make(map[string]string),
		defaults:       make(map[string]ActionHandler),
		validate:       validator.New(),
	}
	r.registerBuiltinDefaults()
	return r
}

func (r *Registry) registerBuiltinDefaults() {
	r.defaults["publishModule"] = func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"published": false}, nil
	}
	r.defaults["pushModule"] = func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"pushed": false}, nil
	}
	r.defaults["getTestResult"] = func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ready": false, "result": nil}, nil
	}
	r.defaults["getBuildStatus"] = func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ready": false, "status": nil}, nil
	}
}

// RegisterFactory registers a plugin factory under name. Registering the
// same name twice replaces the prior factory; already-loaded instances are
// unaffected until reloaded.
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// LoadPlugin invokes the named factory, validates the returned descriptor,
// merges rawConfig with any prior registration's config (last-wins for
// scalars, merged for maps), validates the merged config against the
// plugin's schema if any, and installs its handlers.
func (r *Registry) LoadPlugin(ctx context.Context, name, projectName string, rawConfig map[string]interface{}) error {
	r.mu.Lock()
	factory, ok := r.factories[name]
	r.mu.Unlock()
	if !ok {
		return &PluginError{Plugin: name, Phase: "factory", Err: errNotRegistered}
	}

	descriptor, err := factory(PluginContext{
		ProjectName: projectName,
		Log: func(format string, args ...interface{}) {
			logging.Debug("ProviderRegistry."+name, format, args...)
		},
	})
	if err != nil {
		return &PluginError{Plugin: name, Phase: "factory", Err: err}
	}
	if descriptor == nil {
		return &PluginError{Plugin: name, Phase: "descriptor", Err: errNilDescriptor}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	merged := rawConfig
	if prior, ok := r.loaded[name]; ok && prior.config != nil {
		merged = make(map[string]interface{}, len(prior.config))
		for k, v := range prior.config {
			merged[k] = v
		}
		if err := mergo.Merge(&merged, rawConfig, mergo.WithOverride); err != nil {
			return &PluginError{Plugin: name, Phase: "config", Err: err}
		}
	}

	if descriptor.ConfigSchema != nil {
		if err := r.validateConfig(merged, descriptor.ConfigSchema); err != nil {
			return &PluginError{Plugin: name, Phase: "config", Err: err}
		}
	}

	r.loaded[name] = &loadedPlugin{name: name, config: merged, descriptor: descriptor}
	r.installLocked(name, descriptor)

	logging.Info("ProviderRegistry", "loaded plugin %s", name)
	return nil
}

func (r *Registry) validateConfig(merged map[string]interface{}, schema interface{}) error {
	data, err := yaml.Marshal(merged)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, schema); err != nil {
		return err
	}
	return r.validate.Struct(schema)
}

func (r *Registry) installLocked(providerName string, descriptor *PluginDescriptor) {
	for actionType, handler := range descriptor.Actions {
		r.dispatch[dispatchKey{actionType: actionType, provider: providerName}] = handler
		r.lastRegistered[actionType+"|"] = providerName
		if schema, ok := descriptor.ActionSchemas[actionType]; ok {
			r.schemas[dispatchKey{actionType: actionType, provider: providerName}] = schema
		}
	}
	for actionType, byModuleType := range descriptor.ModuleActions {
		for moduleType, handler := range byModuleType {
			r.dispatch[dispatchKey{actionType: actionType, moduleType: moduleType, provider: providerName}] = handler
			r.lastRegistered[actionType+"|"+moduleType] = providerName
			if schema, ok := descriptor.ActionSchemas[actionType+"|"+moduleType]; ok {
				r.schemas[dispatchKey{actionType: actionType, moduleType: moduleType, provider: providerName}] = schema
			}
		}
	}
}

// GetHandler resolves the handler for (actionType, moduleType, provider).
// If provider is empty, the last-registered provider for that action is
// used. ok is false if no such handler (caller-installed or builtin
// default) exists.
func (r *Registry) GetHandler(actionType, moduleType, provider string) (ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider == "" {
		provider = r.lastRegistered[actionType+"|"+moduleType]
	}
	if provider != "" {
		if h, ok := r.dispatch[dispatchKey{actionType: actionType, moduleType: moduleType, provider: provider}]; ok {
			return h, true
		}
	}
	if h, ok := r.defaults[actionType]; ok {
		return h, true
	}
	return nil, false
}

// GetSchema resolves the declared ActionSchema for (actionType, moduleType,
// provider) using the same provider-resolution rule as GetHandler. ok is
// false if the action has no declared schema (including builtin defaults,
// which never do) — callers should dispatch without validation in that
// case.
func (r *Registry) GetSchema(actionType, moduleType, provider string) (ActionSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider == "" {
		provider = r.lastRegistered[actionType+"|"+moduleType]
	}
	if provider == "" {
		return ActionSchema{}, false
	}
	schema, ok := r.schemas[dispatchKey{actionType: actionType, moduleType: moduleType, provider: provider}]
	return schema, ok
}

// HandlersFor returns every registered provider's handler for
// (actionType, moduleType), keyed by provider name. internal/action uses
// this for aggregate fan-out actions (e.g. getEnvironmentStatus across all
// providers) that don't target a single named provider.
func (r *Registry) HandlersFor(actionType, moduleType string) map[string]ActionHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ActionHandler)
	for key, handler := range r.dispatch {
		if key.actionType == actionType && key.moduleType == moduleType {
			out[key.provider] = handler
		}
	}
	return out
}

var errNotRegistered = pluginErr("no factory registered under that name")
var errNilDescriptor = pluginErr("factory returned a nil descriptor")

type pluginErr string

func (e pluginErr) Error() string { return string(e) }
