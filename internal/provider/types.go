package provider

import "context"

// ActionHandler is a single installed handler for a named action.
type ActionHandler func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)

// PluginContext is passed to a Factory when a plugin is loaded.
type PluginContext struct {
	ProjectName string
	Log         func(format string, args ...interface{})
}

// ActionSchema declares the input and/or output shape of a single action.
// Input and Output, when non-nil, are pointers to zero-valued structs whose
// `validate` tags describe the expected params/result — the same shape
// ConfigSchema uses for provider config.
type ActionSchema struct {
	Input  interface{}
	Output interface{}
}

// PluginDescriptor is what a Factory returns: the handlers a plugin
// contributes, optionally scoped to specific module types, plus its
// declared config schema and inter-provider dependencies.
type PluginDescriptor struct {
	// Actions are plugin-level handlers, e.g. "getEnvironmentStatus".
	Actions map[string]ActionHandler

	// ModuleActions are handlers scoped to a module type, keyed by
	// action type then module type, e.g. ModuleActions["deploy"]["container"].
	ModuleActions map[string]map[string]ActionHandler

	// ActionSchemas declares the input/output schema for entries in
	// Actions and ModuleActions, keyed the same way: plain actionType for
	// a plugin-level action, "actionType|moduleType" for a module-scoped
	// one. An action with no entry here is dispatched without schema
	// validation.
	ActionSchemas map[string]ActionSchema

	// BundledModulePaths are module source paths this plugin ships.
	BundledModulePaths []string

	// ConfigSchema, if non-nil, is a pointer to a zero-valued struct whose
	// `validate` tags describe the plugin's accepted config shape.
	ConfigSchema interface{}

	// Dependencies lists other provider names this plugin requires to be
	// loaded first.
	Dependencies []string
}

// Factory constructs a plugin's descriptor. It may be an in-process
// callable (registered directly) or a thin wrapper that locates and
// invokes an out-of-process plugin module; either way it must be
// idempotent and side-effect free beyond its own initialisation.
type Factory func(ctx PluginContext) (*PluginDescriptor, error)
