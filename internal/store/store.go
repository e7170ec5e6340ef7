// Package store persists interface definitions, environments, base
// cases and runnable cases as JSON files under a single root.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caseforge/caseforge/internal/apispec"
	"github.com/caseforge/caseforge/internal/infra/logger"
	"github.com/caseforge/caseforge/internal/replay"
)

// BaseCase is one reviewed-level test design: named steps and expected
// outcomes for an interface, before it is compiled into a runnable case.
type BaseCase struct {
	ID           string    `json:"id"`
	InterfaceID  string    `json:"interface_id"`
	Name         string    `json:"name"`
	Steps        []any     `json:"steps,omitempty"`
	Expected     []any     `json:"expected,omitempty"`
	Dependencies []any     `json:"dependencies,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is a file-backed persistence layer. All mutations are
// serialized and land via atomic renames.
type Store struct {
	root string
	mu   sync.Mutex
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string) (*Store, error) {
	for _, sub := range []string{"interfaces", "dependencies", "environments"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &Store{root: dir}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

func (s *Store) baseCasesPath() string { return filepath.Join(s.root, "basecases.json") }
func (s *Store) casesPath() string     { return filepath.Join(s.root, "cases.json") }

func readJSONFile[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// writeJSONFile lands data through a temp file and rename so readers
// never observe a half-written document.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReplaceBaseCases swaps the base case set of an interface in one
// operation: existing base cases for the interface are removed, their
// runnable cases cascade away, and the new set is inserted with fresh
// IDs. Returns the inserted rows.
func (s *Store) ReplaceBaseCases(interfaceID string, cases []BaseCase) ([]BaseCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := readJSONFile[[]BaseCase](s.baseCasesPath())
	if err != nil {
		return nil, err
	}
	runnables, err := readJSONFile[[]*replay.RunnableCase](s.casesPath())
	if err != nil {
		return nil, err
	}

	removed := map[string]bool{}
	kept := existing[:0]
	for _, bc := range existing {
		if bc.InterfaceID == interfaceID {
			removed[bc.ID] = true
			continue
		}
		kept = append(kept, bc)
	}

	keptRunnables := runnables[:0]
	for _, rc := range runnables {
		if removed[rc.BaseCaseID] {
			continue
		}
		keptRunnables = append(keptRunnables, rc)
	}

	now := time.Now()
	inserted := make([]BaseCase, 0, len(cases))
	for _, bc := range cases {
		bc.ID = uuid.NewString()
		bc.InterfaceID = interfaceID
		bc.Status = "ready"
		bc.CreatedAt = now
		bc.UpdatedAt = now
		inserted = append(inserted, bc)
	}
	kept = append(kept, inserted...)

	if err := writeJSONFile(s.baseCasesPath(), kept); err != nil {
		return nil, fmt.Errorf("write base cases: %w", err)
	}
	if err := writeJSONFile(s.casesPath(), keptRunnables); err != nil {
		return nil, fmt.Errorf("write runnable cases: %w", err)
	}

	logger.Info("replaced base cases",
		logger.String("interface_id", interfaceID),
		logger.Int("inserted", len(inserted)),
		logger.Int("removed", len(removed)))
	return inserted, nil
}

// BaseCases returns the base cases of one interface.
func (s *Store) BaseCases(interfaceID string) ([]BaseCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := readJSONFile[[]BaseCase](s.baseCasesPath())
	if err != nil {
		return nil, err
	}
	var out []BaseCase
	for _, bc := range all {
		if bc.InterfaceID == interfaceID {
			out = append(out, bc)
		}
	}
	return out, nil
}

// InsertRunnableCase persists one runnable case, assigning its ID.
func (s *Store) InsertRunnableCase(c *replay.RunnableCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := readJSONFile[[]*replay.RunnableCase](s.casesPath())
	if err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	all = append(all, c)
	if err := writeJSONFile(s.casesPath(), all); err != nil {
		return fmt.Errorf("write runnable cases: %w", err)
	}
	logger.Info("inserted runnable case",
		logger.String("id", c.ID),
		logger.String("name", c.Name),
		logger.String("status", c.Status))
	return nil
}

// RunnableCases returns the runnable cases of one interface.
func (s *Store) RunnableCases(interfaceID string) ([]*replay.RunnableCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := readJSONFile[[]*replay.RunnableCase](s.casesPath())
	if err != nil {
		return nil, err
	}
	var out []*replay.RunnableCase
	for _, rc := range all {
		if rc.InterfaceID == interfaceID {
			out = append(out, rc)
		}
	}
	return out, nil
}

// RunnableCase returns one runnable case by ID.
func (s *Store) RunnableCase(id string) (*replay.RunnableCase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := readJSONFile[[]*replay.RunnableCase](s.casesPath())
	if err != nil {
		return nil, err
	}
	for _, rc := range all {
		if rc.ID == id {
			return rc, nil
		}
	}
	return nil, fmt.Errorf("runnable case %q not found", id)
}

func (s *Store) entityPath(kind, id string) string {
	return filepath.Join(s.root, kind, id+".json")
}

// WriteAPISpec persists one interface definition, assigning an ID when
// the definition has none.
func (s *Store) WriteAPISpec(spec *apispec.APISpec) error {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	return writeJSONFile(s.entityPath("interfaces", spec.ID), spec)
}

// APISpec loads one interface definition by ID.
func (s *Store) APISpec(id string) (*apispec.APISpec, error) {
	spec, err := readJSONFile[*apispec.APISpec](s.entityPath("interfaces", id))
	if err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, fmt.Errorf("interface %q not found", id)
	}
	return spec, nil
}

// APISpecs lists every stored interface definition.
func (s *Store) APISpecs() ([]*apispec.APISpec, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "interfaces"))
	if err != nil {
		return nil, err
	}
	var out []*apispec.APISpec
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		spec, err := readJSONFile[*apispec.APISpec](filepath.Join(s.root, "interfaces", entry.Name()))
		if err != nil {
			logger.Warn("skipping unreadable interface file", logger.String("file", entry.Name()), logger.Err(err))
			continue
		}
		if spec != nil {
			out = append(out, spec)
		}
	}
	return out, nil
}

// WriteDependencyGroup persists the dependency group of an interface.
func (s *Store) WriteDependencyGroup(g *apispec.DependencyGroup) error {
	return writeJSONFile(s.entityPath("dependencies", g.InterfaceID), g)
}

// DependencyGroup loads the dependency group of an interface. Missing
// groups come back empty, not as an error.
func (s *Store) DependencyGroup(interfaceID string) (*apispec.DependencyGroup, error) {
	g, err := readJSONFile[*apispec.DependencyGroup](s.entityPath("dependencies", interfaceID))
	if err != nil {
		return nil, err
	}
	if g == nil {
		return &apispec.DependencyGroup{InterfaceID: interfaceID}, nil
	}
	return g, nil
}

// WriteEnvironment persists one environment profile, assigning an ID
// when the profile has none.
func (s *Store) WriteEnvironment(p *apispec.EnvironmentProfile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return writeJSONFile(s.entityPath("environments", p.ID), p)
}

// Environment loads one environment profile by ID.
func (s *Store) Environment(id string) (*apispec.EnvironmentProfile, error) {
	p, err := readJSONFile[*apispec.EnvironmentProfile](s.entityPath("environments", id))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("environment %q not found", id)
	}
	return p, nil
}
