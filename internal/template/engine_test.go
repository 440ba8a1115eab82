package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngine_ResolvesSimpleDottedPath(t *testing.T) {
	ctx := NewModuleContext(NewProjectContext(map[string]string{}), map[string]ModuleEntry{
		"api": {Path: "services/api", Version: "1.2.3"},
	})

	e := New()
	v, err := e.ResolveString("${modules.api.version}", ctx)
	require.NoError(t, err)
	require.Equal(t, "1.2.3", v)
}

func TestEngine_LazyProviderOutputsOnlyInvokedWhenReferenced(t *testing.T) {
	called := false
	providers := map[string]ProviderOutputs{
		"aws": lazyOutputs(func() (map[string]interface{}, error) {
			called = true
			return map[string]interface{}{"region": "us-east-1"}, nil
		}),
	}
	ctx := NewProviderContext(NewProjectContext(map[string]string{}), "dev", providers, nil)

	e := New()
	_, err := e.ResolveString("${environment.name}", ctx)
	require.NoError(t, err)
	require.False(t, called, "provider outputs must not be evaluated unless referenced")

	v, err := e.ResolveString("${providers.aws.region}", ctx)
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, "us-east-1", v)
}

func TestEngine_CircularReferenceDetected(t *testing.T) {
	modules := map[string]ModuleEntry{
		"a": {Outputs: map[string]interface{}{"x": "${modules.b.outputs.x}"}},
		"b": {Outputs: map[string]interface{}{"x": "${modules.a.outputs.x}"}},
	}
	ctx := NewModuleContext(NewProjectContext(map[string]string{}), modules)

	e := New()
	_, err := e.ResolveString("${modules.a.outputs.x}", ctx)
	require.Error(t, err)

	var cycleErr *CircularReferenceError
	require.ErrorAs(t, err, &cycleErr)
	require.Contains(t, cycleErr.Cycle, "modules.a.outputs.x")
	require.Contains(t, cycleErr.Cycle, "modules.b.outputs.x")
}

func TestEngine_PrivateKeyIsUnresolvable(t *testing.T) {
	ctx := NewModuleContext(NewProjectContext(map[string]string{}), map[string]ModuleEntry{
		"api": {Version: "1.0.0"},
	})

	e := New()
	_, err := e.ResolveString("${modules.api._internal}", ctx)
	require.Error(t, err)

	var notFound *KeyNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestEngine_MissingKeyIsKeyNotFoundError(t *testing.T) {
	ctx := NewProjectContext(map[string]string{})

	e := New()
	_, err := e.ResolveString("${local.nope}", ctx)
	require.Error(t, err)

	var notFound *KeyNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestEngine_EmbeddedExpressionsProduceString(t *testing.T) {
	ctx := NewModuleContext(NewProjectContext(map[string]string{}), map[string]ModuleEntry{
		"api": {Version: "1.2.3"},
	})

	e := New()
	v, err := e.ResolveString("build-${modules.api.version}-final", ctx)
	require.NoError(t, err)
	require.Equal(t, "build-1.2.3-final", v)
}

func TestEngine_NestedExpressionInPath(t *testing.T) {
	ctx := NewModuleContext(NewProjectContext(map[string]string{}), map[string]ModuleEntry{
		"api": {Version: "9.9.9"},
	})
	variables := map[string]interface{}{"target": "api"}
	withVars := NewProviderContext(ctx, "dev", nil, variables)

	e := New()
	v, err := e.ResolveString("${modules.${variables.target}.version}", withVars)
	require.NoError(t, err)
	require.Equal(t, "9.9.9", v)
}

func TestEngine_ResolveWholeMapRecurses(t *testing.T) {
	ctx := NewModuleContext(NewProjectContext(map[string]string{}), map[string]ModuleEntry{
		"api": {Version: "2.0.0"},
	})

	e := New()
	input := map[string]interface{}{
		"command": "deploy ${modules.api.version}",
		"nested":  []interface{}{"${modules.api.version}"},
	}
	out, err := e.Resolve(input, ctx)
	require.NoError(t, err)

	resolved := out.(map[string]interface{})
	require.Equal(t, "deploy 2.0.0", resolved["command"])
	require.Equal(t, []interface{}{"2.0.0"}, resolved["nested"])
}

type lazyOutputs func() (map[string]interface{}, error)

func (f lazyOutputs) GetOutputs() (map[string]interface{}, error) { return f() }
