package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"grove/pkg/logging"
)

const maxPreviousUsernames = 5

// localConfigDoc is the strict on-disk shape of LocalConfigStore: unknown
// keys are rejected rather than silently ignored, per spec §6.
type localConfigDoc struct {
	Username             string            `yaml:"username"`
	PreviousUsernames     []string          `yaml:"previous-usernames,omitempty"`
	LinkedProjectSources  map[string]string `yaml:"linkedProjectSources,omitempty"`
	LinkedModuleSources   map[string]string `yaml:"linkedModuleSources,omitempty"`
}

// LocalConfigStore is the per-project on-disk document holding user
// identity (for namespacing) and local link overrides for remote sources.
// Writers within a process are serialised by mu; cross-process writers are
// serialised by an advisory lock file.
type LocalConfigStore struct {
	mu   sync.Mutex
	path string
	doc  localConfigDoc
}

// OpenLocalConfigStore loads (or initialises) the store at path, which is
// conventionally "<project root>/.grove/local.yaml".
func OpenLocalConfigStore(path string) (*LocalConfigStore, error) {
	s := &LocalConfigStore{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("LocalConfigStore: cannot read %s: %w", path, err)
	}

	if err := strictUnmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("LocalConfigStore: %s: %w", path, err)
	}
	return s, nil
}

// strictUnmarshal decodes data into out, failing on any YAML key not
// present in out's struct tags (yaml.v3's KnownFields via a Decoder).
func strictUnmarshal(data []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Username returns the currently configured username, or "" if unset.
func (s *LocalConfigStore) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Username
}

// SetUsername updates the username, pushing the previous value onto the
// previous-usernames list (capped at maxPreviousUsernames, oldest evicted)
// and persists the document.
func (s *LocalConfigStore) SetUsername(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Username != "" && s.doc.Username != username {
		s.doc.PreviousUsernames = append(s.doc.PreviousUsernames, s.doc.Username)
		if len(s.doc.PreviousUsernames) > maxPreviousUsernames {
			s.doc.PreviousUsernames = s.doc.PreviousUsernames[len(s.doc.PreviousUsernames)-maxPreviousUsernames:]
		}
	}
	s.doc.Username = username
	return s.persistLocked()
}

// ResolveLink implements config.LinkOverrides. It looks sourceName up among
// the linked module sources first and then among the linked project sources,
// so a module link wins over a project link with the same name.
func (s *LocalConfigStore) ResolveLink(sourceName string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path, ok := s.doc.LinkedModuleSources[sourceName]; ok {
		return path, true
	}
	if path, ok := s.doc.LinkedProjectSources[sourceName]; ok {
		return path, true
	}
	return "", false
}

// LinkModuleSource records a local path override for a named module source.
func (s *LocalConfigStore) LinkModuleSource(name, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.LinkedModuleSources == nil {
		s.doc.LinkedModuleSources = make(map[string]string)
	}
	s.doc.LinkedModuleSources[name] = path
	return s.persistLocked()
}

// LinkProjectSource records a local path override for a named project source.
func (s *LocalConfigStore) LinkProjectSource(name, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.LinkedProjectSources == nil {
		s.doc.LinkedProjectSources = make(map[string]string)
	}
	s.doc.LinkedProjectSources[name] = path
	return s.persistLocked()
}

// persistLocked writes the document to disk. Callers must hold s.mu.
// Cross-process serialisation is via an exclusive create of a ".lock"
// sibling file; a concurrent writer from another process fails fast rather
// than corrupting the document.
func (s *LocalConfigStore) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("LocalConfigStore: cannot create directory: %w", err)
	}

	lockPath := s.path + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("LocalConfigStore: store is locked by another process (%s): %w", lockPath, err)
	}
	defer func() {
		lock.Close()
		os.Remove(lockPath)
	}()

	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("LocalConfigStore: cannot encode document: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("LocalConfigStore: cannot write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("LocalConfigStore: cannot replace document: %w", err)
	}

	logging.Debug("ConfigLoader", "persisted local config store at %s", s.path)
	return nil
}
