package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/internal/apispec"
	"github.com/caseforge/caseforge/internal/replay"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir)
	require.NoError(t, err)

	for _, sub := range []string{"interfaces", "dependencies", "environments"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestReplaceBaseCasesAssignsIdentity(t *testing.T) {
	s := newStore(t)

	inserted, err := s.ReplaceBaseCases("if-1", []BaseCase{
		{Name: "first"},
		{Name: "second"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 2)

	for _, bc := range inserted {
		assert.NotEmpty(t, bc.ID)
		assert.Equal(t, "if-1", bc.InterfaceID)
		assert.Equal(t, "ready", bc.Status)
		assert.False(t, bc.CreatedAt.IsZero())
	}
	assert.NotEqual(t, inserted[0].ID, inserted[1].ID)

	loaded, err := s.BaseCases("if-1")
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestReplaceBaseCasesScopedToInterface(t *testing.T) {
	s := newStore(t)

	_, err := s.ReplaceBaseCases("if-1", []BaseCase{{Name: "mine"}})
	require.NoError(t, err)
	_, err = s.ReplaceBaseCases("if-2", []BaseCase{{Name: "other"}})
	require.NoError(t, err)

	// Replacing if-1 leaves if-2 untouched.
	_, err = s.ReplaceBaseCases("if-1", []BaseCase{{Name: "mine v2"}})
	require.NoError(t, err)

	one, err := s.BaseCases("if-1")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "mine v2", one[0].Name)

	two, err := s.BaseCases("if-2")
	require.NoError(t, err)
	require.Len(t, two, 1)
	assert.Equal(t, "other", two[0].Name)
}

func TestReplaceBaseCasesCascadesRunnableRemoval(t *testing.T) {
	s := newStore(t)

	inserted, err := s.ReplaceBaseCases("if-1", []BaseCase{{Name: "login"}})
	require.NoError(t, err)

	rc := &replay.RunnableCase{
		Name:        "login runnable",
		BaseCaseID:  inserted[0].ID,
		InterfaceID: "if-1",
		Status:      replay.CaseStatusReady,
	}
	require.NoError(t, s.InsertRunnableCase(rc))

	other := &replay.RunnableCase{
		Name:        "unrelated",
		BaseCaseID:  "elsewhere",
		InterfaceID: "if-2",
		Status:      replay.CaseStatusReady,
	}
	require.NoError(t, s.InsertRunnableCase(other))

	_, err = s.ReplaceBaseCases("if-1", []BaseCase{{Name: "login v2"}})
	require.NoError(t, err)

	gone, err := s.RunnableCases("if-1")
	require.NoError(t, err)
	assert.Empty(t, gone, "runnable cases of replaced base cases cascade away")

	kept, err := s.RunnableCases("if-2")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestInsertAndFetchRunnableCase(t *testing.T) {
	s := newStore(t)

	rc := &replay.RunnableCase{
		Name:        "fetch me",
		InterfaceID: "if-1",
		Status:      replay.CaseStatusReady,
		Request: replay.RequestBlock{
			Method:  "GET",
			URL:     "/thing/${{id}}",
			Headers: map[string]any{"Authorization": "Bearer ${{token}}"},
		},
	}
	require.NoError(t, s.InsertRunnableCase(rc))
	require.NotEmpty(t, rc.ID)

	loaded, err := s.RunnableCase(rc.ID)
	require.NoError(t, err)
	assert.Equal(t, "fetch me", loaded.Name)
	assert.Equal(t, "/thing/${{id}}", loaded.Request.URL, "references persist verbatim")

	_, err = s.RunnableCase("does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAPISpecRoundTrip(t *testing.T) {
	s := newStore(t)

	spec := &apispec.APISpec{
		Method:  "POST",
		Path:    "/users",
		Summary: "Create a user",
		Parameters: map[string][]apispec.Parameter{
			"query": {{Name: "dry_run", Type: "boolean"}},
		},
	}
	require.NoError(t, s.WriteAPISpec(spec))
	require.NotEmpty(t, spec.ID)

	loaded, err := s.APISpec(spec.ID)
	require.NoError(t, err)
	assert.Equal(t, "POST", loaded.Method)
	assert.Equal(t, "/users", loaded.Path)

	all, err := s.APISpecs()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.APISpec("missing")
	require.Error(t, err)
}

func TestDependencyGroupMissingComesBackEmpty(t *testing.T) {
	s := newStore(t)

	g, err := s.DependencyGroup("if-1")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "if-1", g.InterfaceID)
	assert.Empty(t, g.Dependencies)
	assert.Empty(t, g.RenderDocs())
}

func TestDependencyGroupRoundTrip(t *testing.T) {
	s := newStore(t)

	g := &apispec.DependencyGroup{
		InterfaceID: "if-1",
		Dependencies: []apispec.APISpec{
			{Method: "POST", Path: "/login"},
		},
		Extractions: []apispec.ExtractionRule{
			{SourceFieldPath: "data.token", TargetFieldName: "token", IsActive: true},
		},
	}
	require.NoError(t, s.WriteDependencyGroup(g))

	loaded, err := s.DependencyGroup("if-1")
	require.NoError(t, err)
	require.Len(t, loaded.Dependencies, 1)

	docs := loaded.RenderDocs()
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0], "POST /login")
	assert.Contains(t, docs[0], `"token"`)
}

func TestEnvironmentRoundTrip(t *testing.T) {
	s := newStore(t)

	env := &apispec.EnvironmentProfile{
		Name:      "staging",
		Variables: map[string]any{"base_url": "https://stage.example.com"},
		Databases: []apispec.DatabaseConfig{
			{Name: "main", Type: "mysql", Config: map[string]any{"host": "127.0.0.1"}},
		},
	}
	require.NoError(t, s.WriteEnvironment(env))
	require.NotEmpty(t, env.ID)

	loaded, err := s.Environment(env.ID)
	require.NoError(t, err)
	assert.Equal(t, "staging", loaded.Name)
	require.Len(t, loaded.Databases, 1)
	assert.Equal(t, "mysql", loaded.Databases[0].Type)

	snap := loaded.Snapshot()
	snap["base_url"] = "mutated"
	assert.Equal(t, "https://stage.example.com", loaded.Variables["base_url"])

	_, err = s.Environment("missing")
	require.Error(t, err)
}

func TestWriteJSONFileLeavesNoTempBehind(t *testing.T) {
	s := newStore(t)
	_, err := s.ReplaceBaseCases("if-1", []BaseCase{{Name: "a"}})
	require.NoError(t, err)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(entry.Name()))
	}
}
