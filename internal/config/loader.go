package config

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"grove/pkg/logging"
)

// configFileName is the conventional filename ConfigLoader scans for in
// every directory of the project tree.
const configFileName = "grove.yaml"

// ignoreFileName holds VCS-style ignore patterns scoped to the project
// root, the same way a .gitignore scopes a git working tree.
const ignoreFileName = ".groveignore"

// RemoteSourceResolver is the VCS collaborator contract ConfigLoader depends
// on for sources declared with a repositoryUrl. It is implemented by
// internal/vcs; the interface lives here so ConfigLoader has no import-time
// dependency on the VCS implementation.
type RemoteSourceResolver interface {
	// EnsureRemoteSource checks out (cloning or fetching as needed) the
	// given source and returns the absolute local path to scan.
	EnsureRemoteSource(ctx context.Context, ref SourceRef) (string, error)
}

// LinkOverrides resolves a source name to a local path that preempts a
// remote checkout, backed by LocalConfigStore.linkedProjectSources /
// linkedModuleSources.
type LinkOverrides interface {
	ResolveLink(sourceName string) (path string, ok bool)
}

// Loader scans a project tree and produces one Project and any number of
// Module records.
type Loader struct {
	vcs    RemoteSourceResolver
	links  LinkOverrides
	valid  *validator.Validate
}

// NewLoader constructs a Loader. vcs and links may be nil if the project
// declares no remote sources / the caller has no link overrides.
func NewLoader(vcs RemoteSourceResolver, links LinkOverrides) *Loader {
	return &Loader{vcs: vcs, links: links, valid: validator.New()}
}

// Load scans root (an absolute project root path) and every directory
// reachable from it that is not excluded by ignore patterns, including
// directories reached via remote-source checkouts, and returns the single
// Project declaration and every Module declaration found.
func (l *Loader) Load(ctx context.Context, root string) (Project, []Module, error) {
	if !filepath.IsAbs(root) {
		return Project{}, nil, NewConfigError(root, "project root must be an absolute path")
	}

	matcher, err := loadIgnoreMatcher(root)
	if err != nil {
		return Project{}, nil, err
	}

	var project *Project
	modules := make([]Module, 0)
	seenModuleKeys := make(map[string]string) // key -> declaring file

	err = l.scanDir(ctx, root, root, matcher, &project, &modules, seenModuleKeys)
	if err != nil {
		return Project{}, nil, err
	}

	if project == nil {
		return Project{}, nil, NewConfigError(root, "no Project declaration found under %s", root)
	}

	if err := l.scanRemoteSources(ctx, *project, &modules, seenModuleKeys); err != nil {
		return Project{}, nil, err
	}

	return *project, modules, nil
}

func (l *Loader) scanRemoteSources(ctx context.Context, project Project, modules *[]Module, seen map[string]string) error {
	for _, src := range project.Sources {
		local, err := l.resolveSource(ctx, src)
		if err != nil {
			return err
		}
		matcher, err := loadIgnoreMatcher(local)
		if err != nil {
			return err
		}
		var nested *Project // remote sources may not declare their own Project; ignored if absent
		if err := l.scanDir(ctx, local, local, matcher, &nested, modules, seen); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) resolveSource(ctx context.Context, src SourceRef) (string, error) {
	if l.links != nil {
		if path, ok := l.links.ResolveLink(src.Name); ok {
			logging.Debug("ConfigLoader", "using local link override for source %s -> %s", src.Name, path)
			return path, nil
		}
	}
	if l.vcs == nil {
		return "", NewConfigError(src.Name, "source declares repositoryUrl %q but no remote source resolver is configured", src.RepositoryURL)
	}
	return l.vcs.EnsureRemoteSource(ctx, src)
}

// scanDir walks dir recursively (honouring matcher), parsing every
// configFileName it finds and descending into module repositoryUrl sources
// it discovers along the way.
func (l *Loader) scanDir(ctx context.Context, projectRoot, dir string, matcher ignoreMatcher, project **Project, modules *[]Module, seen map[string]string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return NewConfigError(dir, "cannot read directory: %v", err)
	}

	configPath := filepath.Join(dir, configFileName)
	if info, statErr := os.Stat(configPath); statErr == nil && !info.IsDir() {
		if err := l.parseFile(ctx, projectRoot, configPath, dir, project, modules, seen); err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		rel, _ := filepath.Rel(projectRoot, sub)
		if matcher.matches(rel, true) {
			logging.Debug("ConfigLoader", "skipping ignored subtree %s", rel)
			continue
		}
		if err := l.scanDir(ctx, projectRoot, sub, matcher, project, modules, seen); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) parseFile(ctx context.Context, projectRoot, path, dir string, project **Project, modules *[]Module, seen map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return NewConfigError(path, "cannot open: %v", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	for {
		var raw map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			if err.Error() == "EOF" {
				break
			}
			return &ParseError{Path: path, Err: err}
		}
		if raw == nil {
			continue
		}

		declaredProject, declaredModule, err := l.decodeDoc(path, raw)
		if err != nil {
			return err
		}

		if declaredProject != nil {
			if *project != nil {
				return NewConfigError(path, "multiple Project declarations found (first seen for %q)", (*project).Name)
			}
			declaredProject.Path = dir
			*project = declaredProject
		}

		if declaredModule != nil {
			declaredModule.Path = dir
			if err := l.valid.Struct(declaredModule); err != nil {
				return NewConfigError(path, "module %q failed validation: %v", declaredModule.Name, err)
			}
			key := declaredModule.Key()
			if prior, exists := seen[key]; exists {
				return NewConfigError(path, "module name %q already declared in %s", key, prior)
			}
			seen[key] = path
			*modules = append(*modules, *declaredModule)

			if declaredModule.RepositoryURL != "" {
				local, err := l.resolveSource(ctx, SourceRef{Name: key, RepositoryURL: declaredModule.RepositoryURL})
				if err != nil {
					return err
				}
				matcher, err := loadIgnoreMatcher(local)
				if err != nil {
					return err
				}
				var nested *Project
				if err := l.scanDir(ctx, local, local, matcher, &nested, modules, seen); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// decodeDoc re-decodes a single already-parsed YAML document into a Project
// and/or Module record, handling both the flat (kind:) and nested
// (project:/module:) declaration styles. Both styles must yield identical
// internal records.
func (l *Loader) decodeDoc(path string, raw map[string]interface{}) (*Project, *Module, error) {
	// Nested style: project:/module: keys scope one record each.
	if _, hasProjectKey := raw["project"]; hasProjectKey {
		return l.decodeNested(path, raw)
	}
	if _, hasModuleKey := raw["module"]; hasModuleKey {
		return l.decodeNested(path, raw)
	}

	// Flat style: an explicit kind discriminator.
	kindRaw, ok := raw["kind"]
	if !ok {
		return nil, nil, NewConfigError(path, "document has neither a kind discriminator nor a project:/module: key")
	}
	kindStr, _ := kindRaw.(string)
	switch Kind(kindStr) {
	case KindProject:
		p, err := remarshal[Project](raw)
		if err != nil {
			return nil, nil, &ParseError{Path: path, Err: err}
		}
		return &p, nil, nil
	case KindModule:
		m, err := remarshal[Module](raw)
		if err != nil {
			return nil, nil, &ParseError{Path: path, Err: err}
		}
		return nil, &m, nil
	default:
		return nil, nil, NewConfigError(path, "unknown kind %q", kindStr)
	}
}

func (l *Loader) decodeNested(path string, raw map[string]interface{}) (*Project, *Module, error) {
	var doc nestedDoc
	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, nil, &ParseError{Path: path, Err: err}
	}
	if err := yaml.Unmarshal(encoded, &doc); err != nil {
		return nil, nil, &ParseError{Path: path, Err: err}
	}
	return doc.Project, doc.Module, nil
}

// remarshal round-trips raw through YAML into T, used to decode the flat
// style's inline fields into a concrete Project or Module without
// duplicating struct tags.
func remarshal[T any](raw map[string]interface{}) (T, error) {
	var out T
	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return out, err
	}
	err = yaml.Unmarshal(encoded, &out)
	return out, err
}

// ignoreMatcher reports whether a project-root-relative path should be
// skipped during scanning.
type ignoreMatcher interface {
	matches(relPath string, isDir bool) bool
}

type noopMatcher struct{}

func (noopMatcher) matches(string, bool) bool { return false }

func loadIgnoreMatcher(root string) (ignoreMatcher, error) {
	path := filepath.Join(root, ignoreFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return noopMatcher{}, nil
		}
		return nil, NewConfigError(path, "cannot read ignore file: %v", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, NewConfigError(path, "cannot read ignore file: %v", err)
	}

	return newGitignoreMatcher(patterns), nil
}
