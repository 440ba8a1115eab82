package action

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"grove/internal/provider"
)

// Dispatcher exposes typed entry points over a provider.Registry's dispatch
// table.
type Dispatcher struct {
	registry *provider.Registry
	validate *validator.Validate
}

// New returns a Dispatcher backed by registry.
func New(registry *provider.Registry) *Dispatcher {
	return &Dispatcher{registry: registry, validate: validator.New()}
}

// Dispatch resolves and invokes the handler for (actionType, moduleType,
// providerName). If no handler is registered, defaultHandler (if non-nil)
// is used instead; otherwise a provider.NoHandlerError is returned.
//
// When the resolved provider declared an ActionSchema for this action (spec
// §4.5 step 4), the input params are schema-validated before the handler
// runs and the handler's output is schema-validated after — an action with
// no declared schema dispatches unchecked, same as before. An input failure
// is returned as a ParameterError; an output failure as a
// provider.PluginError (phase "handler") wrapping the ParameterError.
func (d *Dispatcher) Dispatch(ctx context.Context, actionType, moduleType, providerName string, input map[string]interface{}, defaultHandler provider.ActionHandler) (map[string]interface{}, error) {
	handler, ok := d.registry.GetHandler(actionType, moduleType, providerName)
	if !ok {
		if defaultHandler == nil {
			return nil, &provider.NoHandlerError{ActionType: actionType, ModuleType: moduleType, Provider: providerName}
		}
		handler = defaultHandler
	}

	schema, hasSchema := d.registry.GetSchema(actionType, moduleType, providerName)

	if hasSchema && schema.Input != nil {
		if err := ValidateAgainstSchema(d.validate, input, freshSchema(schema.Input)); err != nil {
			return nil, err
		}
	}

	output, err := handler(ctx, input)
	if err != nil {
		return output, err
	}

	if hasSchema && schema.Output != nil {
		if err := ValidateAgainstSchema(d.validate, output, freshSchema(schema.Output)); err != nil {
			return nil, &provider.PluginError{Plugin: providerName, Phase: "handler", Err: err}
		}
	}

	return output, nil
}

// freshSchema returns a new zero-valued copy of schema's pointee so that
// ValidateAgainstSchema's decode-into-schema step never mutates the shared
// descriptor value across concurrent dispatches.
func freshSchema(schema interface{}) interface{} {
	t := reflect.TypeOf(schema)
	if t != nil && t.Kind() == reflect.Ptr {
		return reflect.New(t.Elem()).Interface()
	}
	return schema
}

// DispatchAggregate invokes every provider's handler for (actionType,
// moduleType) — used for actions like getEnvironmentStatus that report
// across all configured providers rather than a single named one — and
// returns each provider's result keyed by provider name. A single
// provider's failure is recorded under its name rather than aborting the
// others.
func (d *Dispatcher) DispatchAggregate(ctx context.Context, actionType, moduleType string, input map[string]interface{}) map[string]AggregateResult {
	handlers := d.registry.HandlersFor(actionType, moduleType)
	out := make(map[string]AggregateResult, len(handlers))
	for name, handler := range handlers {
		output, err := handler(ctx, input)
		out[name] = AggregateResult{Output: output, Err: err}
	}
	return out
}

// AggregateResult is one provider's outcome within a DispatchAggregate call.
type AggregateResult struct {
	Output map[string]interface{}
	Err    error
}

// ValidateAgainstSchema decodes data into a fresh copy of schema (a pointer
// to a zero-valued struct with `validate` tags) and runs struct validation,
// reporting the first failing field as a ParameterError keyed by its
// fully-qualified path.
func ValidateAgainstSchema(validate *validator.Validate, data map[string]interface{}, schema interface{}) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return &ParameterError{Key: "", Message: fmt.Sprintf("cannot encode input: %v", err)}
	}
	if err := yaml.Unmarshal(raw, schema); err != nil {
		return &ParameterError{Key: "", Message: fmt.Sprintf("cannot decode input: %v", err)}
	}
	if err := validate.Struct(schema); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return &ParameterError{Key: first.Namespace(), Message: first.Tag()}
		}
		return &ParameterError{Key: "", Message: err.Error()}
	}
	return nil
}
