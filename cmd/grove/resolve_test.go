package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"grove/internal/config"
)

func TestResolveProjectTemplates_ResolvesVariablesAndEnvironmentName(t *testing.T) {
	project := config.Project{
		Name:                "demo",
		DefaultEnvironment:  "prod",
		EnvironmentDefaults: map[string]interface{}{"region": "us-east-1"},
		Environments: []config.Environment{
			{Name: "prod", Variables: map[string]interface{}{"tier": "gold"}},
		},
	}
	m := config.Module{
		Type:  "container",
		Name:  "api",
		Build: config.Build{Command: "deploy --region=${variables.region} --env=${environment.name}"},
		Spec:  map[string]interface{}{"tier": "${variables.tier}"},
	}

	resolved, err := resolveProjectTemplates(project, []config.Module{m})
	require.NoError(t, err)
	require.Equal(t, "deploy --region=us-east-1 --env=prod", resolved[0].Build.Command)
	require.Equal(t, "gold", resolved[0].Spec["tier"])
}

func TestResolveProjectTemplates_LeavesModuleOutputReferencesUnresolved(t *testing.T) {
	project := config.Project{Name: "demo"}
	m := config.Module{
		Type: "container",
		Name: "api",
		Spec: map[string]interface{}{"image": "${modules.shared.outputs.image}"},
	}

	resolved, err := resolveProjectTemplates(project, []config.Module{m})
	require.NoError(t, err)
	require.Equal(t, "${modules.shared.outputs.image}", resolved[0].Spec["image"])
}

func TestResolveProjectTemplates_UnknownNonModuleReferenceStillErrors(t *testing.T) {
	project := config.Project{Name: "demo"}
	m := config.Module{
		Type: "container",
		Name: "api",
		Spec: map[string]interface{}{"bogus": "${variables.doesNotExist}"},
	}

	_, err := resolveProjectTemplates(project, []config.Module{m})
	require.Error(t, err)
}
