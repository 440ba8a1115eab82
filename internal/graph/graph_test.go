package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"grove/internal/config"
)

func containerModule(name string, buildDeps ...string) config.Module {
	var deps []config.BuildDependency
	for _, d := range buildDeps {
		deps = append(deps, config.BuildDependency{Name: "container." + d})
	}
	return config.Module{
		Type:  "container",
		Name:  name,
		Build: config.Build{Command: "make build", Dependencies: deps},
	}
}

func TestNew_ServiceDependsOnOwningModuleBuild(t *testing.T) {
	m := containerModule("api")
	m.Services = []config.ServiceDecl{{Name: "api-svc"}}

	g, err := New([]config.Module{m})
	require.NoError(t, err)

	deps := g.GetDependencies(Ref{Kind: KindService, Name: "api-svc"}, false, nil)
	require.Equal(t, []Ref{{Kind: KindBuild, Name: "container.api"}}, deps)
}

func TestNew_BuildDependencyChainResolves(t *testing.T) {
	shared := containerModule("shared")
	api := containerModule("api", "shared")

	g, err := New([]config.Module{shared, api})
	require.NoError(t, err)

	deps := g.GetDependencies(Ref{Kind: KindBuild, Name: "container.api"}, false, nil)
	require.Equal(t, []Ref{{Kind: KindBuild, Name: "container.shared"}}, deps)
}

func TestNew_TemplateReferenceToAnotherModuleImpliesBuildDependency(t *testing.T) {
	shared := containerModule("shared")
	api := containerModule("api") // no explicit build.dependencies entry
	api.Spec = map[string]interface{}{"image": "${modules.shared.outputs.image}"}

	g, err := New([]config.Module{shared, api})
	require.NoError(t, err)

	deps := g.GetDependencies(Ref{Kind: KindBuild, Name: "container.api"}, false, nil)
	require.Equal(t, []Ref{{Kind: KindBuild, Name: "container.shared"}}, deps)
}

func TestNew_TemplateReferenceDoesNotDuplicateExplicitDependency(t *testing.T) {
	shared := containerModule("shared")
	api := containerModule("api", "shared")
	api.Spec = map[string]interface{}{"image": "${modules.shared.outputs.image}"}

	g, err := New([]config.Module{shared, api})
	require.NoError(t, err)

	deps := g.GetDependencies(Ref{Kind: KindBuild, Name: "container.api"}, false, nil)
	require.Equal(t, []Ref{{Kind: KindBuild, Name: "container.shared"}}, deps)
}

func TestNew_UnknownBuildDependencyIsConfigError(t *testing.T) {
	api := containerModule("api", "missing")

	_, err := New([]config.Module{api})
	require.Error(t, err)

	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNew_DuplicateServiceNameIsConfigError(t *testing.T) {
	a := containerModule("a")
	a.Services = []config.ServiceDecl{{Name: "shared-name"}}
	b := containerModule("b")
	b.Services = []config.ServiceDecl{{Name: "shared-name"}}

	_, err := New([]config.Module{a, b})
	require.Error(t, err)
}

func TestNew_CircularBuildDependencyDetected(t *testing.T) {
	a := containerModule("a", "b")
	b := containerModule("b", "a")

	_, err := New([]config.Module{a, b})
	require.Error(t, err)

	var cycleErr *CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	require.GreaterOrEqual(t, len(cycleErr.Cycle), 2)
}

func TestGetDependencies_RecursiveWalksTransitively(t *testing.T) {
	shared := containerModule("shared")
	mid := containerModule("mid", "shared")
	api := containerModule("api", "mid")

	g, err := New([]config.Module{shared, mid, api})
	require.NoError(t, err)

	deps := g.GetDependencies(Ref{Kind: KindBuild, Name: "container.api"}, true, nil)
	require.ElementsMatch(t, []Ref{
		{Kind: KindBuild, Name: "container.mid"},
		{Kind: KindBuild, Name: "container.shared"},
	}, deps)
}

func TestGetDependants_FindsTransitiveDependants(t *testing.T) {
	shared := containerModule("shared")
	api := containerModule("api", "shared")

	g, err := New([]config.Module{shared, api})
	require.NoError(t, err)

	dependants := g.GetDependants(Ref{Kind: KindBuild, Name: "container.shared"}, true, nil)
	require.Equal(t, []Ref{{Kind: KindBuild, Name: "container.api"}}, dependants)
}

func TestWithDependantModules_IncludesOriginalAndDownstream(t *testing.T) {
	shared := containerModule("shared")
	api := containerModule("api", "shared")

	g, err := New([]config.Module{shared, api})
	require.NoError(t, err)

	modules := g.WithDependantModules([]string{"container.shared"})
	require.ElementsMatch(t, []string{"container.shared", "container.api"}, modules)
}

func TestModulesForRelations_DedupesByOwningModule(t *testing.T) {
	api := containerModule("api")
	api.Services = []config.ServiceDecl{{Name: "svc-a"}, {Name: "svc-b"}}

	g, err := New([]config.Module{api})
	require.NoError(t, err)

	modules := g.ModulesForRelations([]Ref{
		{Kind: KindService, Name: "svc-a"},
		{Kind: KindService, Name: "svc-b"},
	})
	require.Equal(t, []string{"container.api"}, modules)
}

func TestRefs_SortedByKindThenName(t *testing.T) {
	shared := containerModule("shared")
	api := containerModule("api", "shared")
	api.Services = []config.ServiceDecl{{Name: "api-svc"}}

	g, err := New([]config.Module{shared, api})
	require.NoError(t, err)

	require.Equal(t, []Ref{
		{Kind: KindBuild, Name: "container.api"},
		{Kind: KindBuild, Name: "container.shared"},
		{Kind: KindService, Name: "api-svc"},
	}, g.Refs())
}
