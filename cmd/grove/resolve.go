package main

import (
	"errors"
	"fmt"
	"strings"

	"dario.cat/mergo"

	"grove/internal/config"
	"grove/internal/template"
)

// resolveProjectTemplates resolves every module's templated Build.Command
// and Spec fields against a ConfigContext built from the project's default
// environment (local.env, environment.name, variables) — the layer of
// ConfigContext (§4.2) that's knowable before any module has actually been
// built.
//
// Expressions referencing another module's outputs ("modules.<name>...")
// are deliberately left untouched here: a module's outputs don't exist
// until that module has been built, so those are resolved per-task at
// dispatch time instead, once the referenced module's build result is
// actually available (see buildTask.Process in run.go, which layers a
// ModuleContext from real dependency results before invoking the provider
// action).
func resolveProjectTemplates(project config.Project, modules []config.Module) ([]config.Module, error) {
	engine := template.New()
	ctx := projectTemplateContext(project)

	out := make([]config.Module, len(modules))
	for i, m := range modules {
		resolved, err := resolveModuleTemplates(engine, ctx, m)
		if err != nil {
			return nil, fmt.Errorf("resolving templates for module %s: %w", m.Key(), err)
		}
		out[i] = resolved
	}
	return out, nil
}

// projectTemplateContext builds the ProjectContext+ProviderContext layers:
// local.env/local.platform, environment.name, and variables merged from the
// project's environmentDefaults with its default environment's own
// variables taking precedence. No providers are registered yet at this
// point in the pipeline, so providers.<name> resolves to nothing here.
func projectTemplateContext(project config.Project) template.Context {
	variables := make(map[string]interface{}, len(project.EnvironmentDefaults))
	for k, v := range project.EnvironmentDefaults {
		variables[k] = v
	}
	for _, env := range project.Environments {
		if env.Name != project.DefaultEnvironment || env.Variables == nil {
			continue
		}
		_ = mergo.Merge(&variables, env.Variables, mergo.WithOverride)
	}

	root := template.NewProjectContext(nil)
	return template.NewProviderContext(root, project.DefaultEnvironment, nil, variables)
}

func resolveModuleTemplates(engine *template.Engine, ctx template.Context, m config.Module) (config.Module, error) {
	out := m

	cmd, err := resolveDeferred(engine, ctx, m.Build.Command)
	if err != nil {
		return config.Module{}, err
	}
	switch v := cmd.(type) {
	case string:
		out.Build.Command = v
	case nil:
		out.Build.Command = ""
	default:
		out.Build.Command = fmt.Sprint(v)
	}

	if out.Spec, err = resolveSpec(engine, ctx, m.Spec); err != nil {
		return config.Module{}, err
	}

	out.Services = append([]config.ServiceDecl(nil), m.Services...)
	for i := range out.Services {
		if out.Services[i].Spec, err = resolveSpec(engine, ctx, out.Services[i].Spec); err != nil {
			return config.Module{}, err
		}
	}

	out.Tasks = append([]config.TaskDecl(nil), m.Tasks...)
	for i := range out.Tasks {
		if out.Tasks[i].Spec, err = resolveSpec(engine, ctx, out.Tasks[i].Spec); err != nil {
			return config.Module{}, err
		}
	}

	out.Tests = append([]config.TestDecl(nil), m.Tests...)
	for i := range out.Tests {
		if out.Tests[i].Spec, err = resolveSpec(engine, ctx, out.Tests[i].Spec); err != nil {
			return config.Module{}, err
		}
	}

	return out, nil
}

func resolveSpec(engine *template.Engine, ctx template.Context, spec map[string]interface{}) (map[string]interface{}, error) {
	if spec == nil {
		return nil, nil
	}
	resolved, err := resolveDeferred(engine, ctx, spec)
	if err != nil {
		return nil, err
	}
	m, ok := resolved.(map[string]interface{})
	if !ok {
		return spec, nil
	}
	return m, nil
}

// resolveDeferred resolves value against ctx, but treats a reference to
// another module's (not-yet-known) outputs as "leave it as-is" rather than
// a hard failure, since ctx has no "modules" layer at this stage.
func resolveDeferred(engine *template.Engine, ctx template.Context, value interface{}) (interface{}, error) {
	resolved, err := engine.Resolve(value, ctx)
	if err != nil {
		var notFound *template.KeyNotFoundError
		if errors.As(err, &notFound) && strings.HasPrefix(notFound.Path, "modules.") {
			return value, nil
		}
		return nil, err
	}
	return resolved, nil
}
