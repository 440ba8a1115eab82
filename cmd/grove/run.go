package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"grove/internal/action"
	"grove/internal/config"
	"grove/internal/events"
	"grove/internal/graph"
	"grove/internal/provider"
	"grove/internal/scheduler"
	"grove/internal/template"
	"grove/internal/version"
)

// runTimeout bounds how long `grove run` waits for the derived task graph
// to finish, since task bodies here are synthetic and should never
// legitimately hang.
const runTimeout = 5 * time.Minute

// taskGraphError is returned by `grove run` when one or more tasks failed;
// it is what getExitCode in root.go matches on to report ExitCodeTaskError.
type taskGraphError struct {
	failed []scheduler.TaskResult
}

func (e *taskGraphError) Error() string {
	keys := make([]string, len(e.failed))
	for i, r := range e.failed {
		keys[i] = r.Key
	}
	return fmt.Sprintf("TaskError: %d task(s) failed: %s", len(e.failed), strings.Join(keys, ", "))
}

func newRunCmd() *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "run [project-root]",
		Short: "Resolve a project's build graph and run it through the scheduler",
		Long: `run derives one build task per module from the project's ConfigGraph and
submits them to the TaskGraph scheduler. Each task's body dispatches through
the ActionDispatcher's "build" module action; since no provider plugins are
loaded by this command, dispatch falls back to a handler that reports that
nothing was built and why — this is a demonstration of the wiring, not a
real build.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			lp, err := loadProject(cmd.Context(), root)
			if err != nil {
				return err
			}

			registry := provider.NewRegistry()
			dispatcher := action.New(registry)

			bus := events.NewBus()
			unsub := bus.Subscribe(func(ev events.Event) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", ev.Type, ev.Key)
			})
			defer unsub()

			sched := scheduler.New(cmd.Context(), scheduler.Options{Bus: bus})
			defer sched.Close()

			builder := &buildTaskBuilder{
				lp:         lp,
				baseCtx:    projectTemplateContext(lp.project),
				dispatcher: dispatcher,
				provider:   providerName,
				memo:       make(map[string]*buildTask),
			}

			var roots []scheduler.Task
			for _, ref := range lp.graph.Refs() {
				if ref.Kind != graph.KindBuild {
					continue
				}
				t, err := builder.taskFor(ref)
				if err != nil {
					return err
				}
				roots = append(roots, t)
			}

			if err := sched.AddTask(roots, nil); err != nil {
				return err
			}

			waitCtx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()
			if err := sched.Wait(waitCtx); err != nil {
				return err
			}

			var failed []scheduler.TaskResult
			for _, r := range sched.Results() {
				if r.Failed() {
					failed = append(failed, r)
				}
			}
			if len(failed) > 0 {
				return &taskGraphError{failed: failed}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "provider name to dispatch build actions to (default: last registered)")
	return cmd
}

// buildTaskBuilder turns graph.Ref build nodes into scheduler.Task values,
// memoising one buildTask per ref so shared dependencies are only built
// once.
type buildTaskBuilder struct {
	lp         *loadedProject
	baseCtx    template.Context
	dispatcher *action.Dispatcher
	provider   string
	memo       map[string]*buildTask
}

func (b *buildTaskBuilder) taskFor(ref graph.Ref) (*buildTask, error) {
	moduleKey := b.lp.graph.Module(ref)
	if t, ok := b.memo[moduleKey]; ok {
		return t, nil
	}

	mv, err := b.lp.resolver.Resolve(context.Background(), b.lp.moduleLookup(), moduleKey)
	if err != nil {
		return nil, err
	}

	module, ok := b.lp.moduleLookup()(moduleKey)
	if !ok {
		return nil, fmt.Errorf("module %s: resolved in graph but missing from loaded modules", moduleKey)
	}

	moduleType := moduleKey
	if idx := strings.IndexByte(moduleKey, '.'); idx >= 0 {
		moduleType = moduleKey[:idx]
	}

	t := &buildTask{
		moduleKey:  moduleKey,
		moduleType: moduleType,
		module:     module,
		baseCtx:    b.baseCtx,
		version:    mv,
		dispatcher: b.dispatcher,
		provider:   b.provider,
	}
	b.memo[moduleKey] = t

	for _, dep := range b.lp.graph.GetDependencies(ref, false, nil) {
		depTask, err := b.taskFor(dep)
		if err != nil {
			return nil, err
		}
		t.deps = append(t.deps, depTask)
	}

	return t, nil
}

// buildTask is the scheduler.Task implementation `grove run` derives from
// each build node in the ConfigGraph.
type buildTask struct {
	moduleKey  string
	moduleType string
	module     config.Module
	baseCtx    template.Context
	version    version.ModuleVersion
	dispatcher *action.Dispatcher
	provider   string
	deps       []scheduler.Task
}

func (t *buildTask) Type() string                            { return "build" }
func (t *buildTask) BaseKey() string                         { return "build." + t.moduleKey }
func (t *buildTask) Key() string                             { return "build." + t.moduleKey + "." + t.version.VersionString[:8] }
func (t *buildTask) Description() string                     { return "build " + t.moduleKey }
func (t *buildTask) Version() version.ModuleVersion          { return t.version }
func (t *buildTask) Force() bool                             { return false }
func (t *buildTask) ConcurrencyLimit() int                    { return 0 }
func (t *buildTask) Dependencies() ([]scheduler.Task, error) { return t.deps, nil }

// moduleContext layers a modules.<name> namespace, built from this task's
// already-completed dependency results, over the project-level context —
// this is what finally resolves the "modules.<name>.outputs.*" template
// references that loadProject's eager pass (resolve.go) deliberately left
// untouched, now that those modules have actually been built.
func (t *buildTask) moduleContext(results map[string]scheduler.TaskResult) template.Context {
	entries := make(map[string]template.ModuleEntry, len(t.deps))
	for _, d := range t.deps {
		dep, ok := d.(*buildTask)
		if !ok {
			continue
		}
		entries[dep.module.Name] = template.ModuleEntry{
			Path:    dep.module.Path,
			Version: dep.version.VersionString,
			Outputs: results[dep.Key()].Output,
		}
	}
	return template.NewModuleContext(t.baseCtx, entries)
}

func (t *buildTask) Process(ctx context.Context, dependencyResults map[string]scheduler.TaskResult) (map[string]interface{}, error) {
	engine := template.New()
	moduleCtx := t.moduleContext(dependencyResults)

	resolvedCommand, err := engine.ResolveString(t.module.Build.Command, moduleCtx)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", t.moduleKey, err)
	}
	command, _ := resolvedCommand.(string)

	var spec map[string]interface{}
	if t.module.Spec != nil {
		resolvedSpec, err := engine.Resolve(t.module.Spec, moduleCtx)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", t.moduleKey, err)
		}
		spec, _ = resolvedSpec.(map[string]interface{})
	}

	input := map[string]interface{}{
		"moduleKey": t.moduleKey,
		"version":   t.version.VersionString,
		"command":   command,
		"spec":      spec,
	}
	defaultHandler := func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"built": false, "reason": "no provider handler registered for module type " + t.moduleType}, nil
	}
	return t.dispatcher.Dispatch(ctx, "build", t.moduleType, t.provider, input, defaultHandler)
}
