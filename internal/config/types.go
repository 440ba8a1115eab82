package config

// Kind discriminates the flat declaration style.
type Kind string

const (
	KindProject Kind = "Project"
	KindModule  Kind = "Module"
)

// BuildDependency is a single build-time dependency of a Module, with an
// optional file-copy spec used to stage files from the dependency's build
// output into this module's build context.
type BuildDependency struct {
	Name  string     `yaml:"name" validate:"required"`
	Copy  []CopySpec `yaml:"copy,omitempty"`
}

// CopySpec describes a single source->target file copy from a build
// dependency's output into the dependant's build context.
type CopySpec struct {
	Source string `yaml:"source" validate:"required"`
	Target string `yaml:"target,omitempty"`
}

// Build declares a Module's build command and its build-time dependencies.
type Build struct {
	Command      string            `yaml:"command,omitempty"`
	Dependencies []BuildDependency `yaml:"dependencies,omitempty"`
}

// ServiceDecl is the on-disk declaration of a Service owned by a Module.
type ServiceDecl struct {
	Name         string                 `yaml:"name" validate:"required"`
	SourceModule string                 `yaml:"sourceModule,omitempty"`
	DependsOn    []string               `yaml:"dependsOn,omitempty"`
	Spec         map[string]interface{} `yaml:"spec,omitempty"`
}

// TaskDecl is the on-disk declaration of a Task owned by a Module.
type TaskDecl struct {
	Name      string                 `yaml:"name" validate:"required"`
	DependsOn []string               `yaml:"dependsOn,omitempty"`
	Spec      map[string]interface{} `yaml:"spec,omitempty"`
	Timeout   string                 `yaml:"timeout,omitempty"`
}

// TestDecl is the on-disk declaration of a TestConfig owned by a Module. Its
// identity is `<module>.<name>`; Name is unique within the owning module.
type TestDecl struct {
	Name      string                 `yaml:"name" validate:"required"`
	DependsOn []string               `yaml:"dependsOn,omitempty"`
	Spec      map[string]interface{} `yaml:"spec,omitempty"`
}

// Environment is one named deployment target within a Project, e.g. "local"
// or "prod", each with its own provider configuration.
type Environment struct {
	Name      string                            `yaml:"name" validate:"required"`
	Providers map[string]map[string]interface{} `yaml:"providers,omitempty"`
	Variables map[string]interface{}            `yaml:"variables,omitempty"`
}

// SourceRef names a remote source a Project or Module pulls configuration
// from, resolved via the VCS collaborator's ensureRemoteSource contract.
type SourceRef struct {
	Name          string `yaml:"name" validate:"required"`
	RepositoryURL string `yaml:"repositoryUrl" validate:"required"`
	Ref           string `yaml:"ref,omitempty"`
}

// Project is the top-level declaration. Exactly one may exist per scanned
// project tree.
type Project struct {
	Name               string                  `yaml:"name" validate:"required"`
	DefaultEnvironment string                  `yaml:"defaultEnvironment,omitempty"`
	EnvironmentDefaults map[string]interface{} `yaml:"environmentDefaults,omitempty"`
	Environments       []Environment           `yaml:"environments,omitempty"`
	Sources            []SourceRef             `yaml:"sources,omitempty"`

	// Path is the absolute directory the Project declaration was read from.
	// Not part of the YAML document; populated by the loader.
	Path string `yaml:"-"`
}

// Module is a unit of code and artifact. Name must be unique across the
// project after type-aware key composition (see Module.Key).
type Module struct {
	Type          string                 `yaml:"type" validate:"required"`
	Name          string                 `yaml:"name" validate:"required"`
	Description   string                 `yaml:"description,omitempty"`
	RepositoryURL string                 `yaml:"repositoryUrl,omitempty"`
	AllowPublish  bool                   `yaml:"allowPublish,omitempty"`
	Build         Build                  `yaml:"build,omitempty"`
	Services      []ServiceDecl          `yaml:"services,omitempty"`
	Tasks         []TaskDecl             `yaml:"tasks,omitempty"`
	Tests         []TestDecl             `yaml:"tests,omitempty"`
	Spec          map[string]interface{} `yaml:"spec,omitempty"`

	// Path is the absolute directory the Module declaration was read from.
	// Not part of the YAML document; populated by the loader.
	Path string `yaml:"-"`
}

// Key returns the module's type-aware unique key, e.g. "container.api".
// ConfigLoader uses this to detect name collisions across scanned files.
func (m Module) Key() string {
	return m.Type + "." + m.Name
}

// nestedDoc is the nested declaration style:
//
//	project:
//	  name: myproject
//	module:
//	  type: container
//	  name: api
type nestedDoc struct {
	Project *Project `yaml:"project,omitempty"`
	Module  *Module  `yaml:"module,omitempty"`
}
