package action

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"grove/internal/provider"
)

func TestDispatcher_DispatchesToExplicitProvider(t *testing.T) {
	reg := provider.NewRegistry()
	reg.RegisterFactory("aws", func(ctx provider.PluginContext) (*provider.PluginDescriptor, error) {
		return &provider.PluginDescriptor{Actions: map[string]provider.ActionHandler{
			"getSecret": func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				return map[string]interface{}{"value": "shh"}, nil
			},
		}}, nil
	})
	require.NoError(t, reg.LoadPlugin(context.Background(), "aws", "demo", nil))

	d := New(reg)
	out, err := d.Dispatch(context.Background(), "getSecret", "", "aws", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "shh", out["value"])
}

func TestDispatcher_NoHandlerUsesCallerDefault(t *testing.T) {
	reg := provider.NewRegistry()
	d := New(reg)

	fallback := func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"fallback": true}, nil
	}
	out, err := d.Dispatch(context.Background(), "customAction", "", "", nil, fallback)
	require.NoError(t, err)
	require.Equal(t, true, out["fallback"])
}

func TestDispatcher_NoHandlerNoDefaultIsNoHandlerError(t *testing.T) {
	reg := provider.NewRegistry()
	d := New(reg)

	_, err := d.Dispatch(context.Background(), "customAction", "", "", nil, nil)
	require.Error(t, err)

	var noHandler *provider.NoHandlerError
	require.ErrorAs(t, err, &noHandler)
}

func TestDispatcher_DispatchAggregateCollectsAllProviders(t *testing.T) {
	reg := provider.NewRegistry()
	reg.RegisterFactory("aws", func(ctx provider.PluginContext) (*provider.PluginDescriptor, error) {
		return &provider.PluginDescriptor{Actions: map[string]provider.ActionHandler{
			"getEnvironmentStatus": func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				return map[string]interface{}{"status": "ready"}, nil
			},
		}}, nil
	})
	reg.RegisterFactory("gcp", func(ctx provider.PluginContext) (*provider.PluginDescriptor, error) {
		return &provider.PluginDescriptor{Actions: map[string]provider.ActionHandler{
			"getEnvironmentStatus": func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				return map[string]interface{}{"status": "pending"}, nil
			},
		}}, nil
	})
	require.NoError(t, reg.LoadPlugin(context.Background(), "aws", "demo", nil))
	require.NoError(t, reg.LoadPlugin(context.Background(), "gcp", "demo", nil))

	d := New(reg)
	results := d.DispatchAggregate(context.Background(), "getEnvironmentStatus", "", nil)
	require.Len(t, results, 2)
	require.Equal(t, "ready", results["aws"].Output["status"])
	require.Equal(t, "pending", results["gcp"].Output["status"])
}

type secretInput struct {
	Name string `yaml:"name" validate:"required"`
}

type secretOutput struct {
	Value string `yaml:"value" validate:"required"`
}

func TestDispatcher_DispatchValidatesInputAgainstDeclaredSchema(t *testing.T) {
	reg := provider.NewRegistry()
	reg.RegisterFactory("aws", func(ctx provider.PluginContext) (*provider.PluginDescriptor, error) {
		return &provider.PluginDescriptor{
			Actions: map[string]provider.ActionHandler{
				"getSecret": func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
					return map[string]interface{}{"value": "shh"}, nil
				},
			},
			ActionSchemas: map[string]provider.ActionSchema{
				"getSecret": {Input: &secretInput{}, Output: &secretOutput{}},
			},
		}, nil
	})
	require.NoError(t, reg.LoadPlugin(context.Background(), "aws", "demo", nil))

	d := New(reg)

	_, err := d.Dispatch(context.Background(), "getSecret", "", "aws", map[string]interface{}{}, nil)
	require.Error(t, err, "missing required input field should be rejected before the handler runs")
	var paramErr *ParameterError
	require.ErrorAs(t, err, &paramErr)

	out, err := d.Dispatch(context.Background(), "getSecret", "", "aws", map[string]interface{}{"name": "db-password"}, nil)
	require.NoError(t, err)
	require.Equal(t, "shh", out["value"])
}

func TestDispatcher_DispatchValidatesOutputAgainstDeclaredSchema(t *testing.T) {
	reg := provider.NewRegistry()
	reg.RegisterFactory("aws", func(ctx provider.PluginContext) (*provider.PluginDescriptor, error) {
		return &provider.PluginDescriptor{
			Actions: map[string]provider.ActionHandler{
				"getSecret": func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
					return map[string]interface{}{}, nil // missing required "value"
				},
			},
			ActionSchemas: map[string]provider.ActionSchema{
				"getSecret": {Input: &secretInput{}, Output: &secretOutput{}},
			},
		}, nil
	})
	require.NoError(t, reg.LoadPlugin(context.Background(), "aws", "demo", nil))

	d := New(reg)
	_, err := d.Dispatch(context.Background(), "getSecret", "", "aws", map[string]interface{}{"name": "db-password"}, nil)
	require.Error(t, err, "handler output missing a required field should be rejected")
	var paramErr *ParameterError
	require.ErrorAs(t, err, &paramErr)
}

func TestDispatcher_DispatchSkipsValidationWhenNoSchemaDeclared(t *testing.T) {
	reg := provider.NewRegistry()
	reg.RegisterFactory("aws", func(ctx provider.PluginContext) (*provider.PluginDescriptor, error) {
		return &provider.PluginDescriptor{Actions: map[string]provider.ActionHandler{
			"getSecret": func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
				return map[string]interface{}{}, nil
			},
		}}, nil
	})
	require.NoError(t, reg.LoadPlugin(context.Background(), "aws", "demo", nil))

	d := New(reg)
	_, err := d.Dispatch(context.Background(), "getSecret", "", "aws", map[string]interface{}{}, nil)
	require.NoError(t, err, "no declared schema means no validation, even with an empty input/output")
}

func TestValidateAgainstSchema_ReportsFirstFailingField(t *testing.T) {
	v := validator.New()
	err := ValidateAgainstSchema(v, map[string]interface{}{}, &secretInput{})
	require.Error(t, err)

	var paramErr *ParameterError
	require.ErrorAs(t, err, &paramErr)
	require.Contains(t, paramErr.Key, "Name")
}

func TestValidateAgainstSchema_PassesValidInput(t *testing.T) {
	v := validator.New()
	err := ValidateAgainstSchema(v, map[string]interface{}{"name": "db-password"}, &secretInput{})
	require.NoError(t, err)
}
