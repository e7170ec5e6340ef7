package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/internal/apispec"
	"github.com/caseforge/caseforge/internal/replay"
	"github.com/caseforge/caseforge/internal/store"
)

func loginServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"token":"tok-1"}}`))
	})
	return httptest.NewServer(mux)
}

func runnableCaseJSON(url string) string {
	return fmt.Sprintf("```json\n"+`{
  "name": "login succeeds",
  "description": "valid credentials return a token",
  "interface": "POST /login",
  "request": {
    "method": "POST",
    "url": "%s",
    "headers": {"Content-Type": "application/json"},
    "body": {"user": "alice", "password": "${{password}}"}
  },
  "assertions": {
    "response": [
      {"type": "http_code", "expected": 200},
      {"type": "equal", "field": "code", "expected": 0},
      {"type": "not_null", "field": "data.token"}
    ]
  }
}`+"\n```", url)
}

func TestRunnableWorkflowStoresReadyCase(t *testing.T) {
	server := loginServer(t)
	defer server.Close()

	s := newTestStore(t)
	provider := &fakeProvider{runnable: []string{runnableCaseJSON("/login")}}
	workflow := NewRunnableCaseWorkflow(provider, s, nil, t.TempDir(), nil)

	c, err := workflow.Run(context.Background(), RunnableInput{
		BaseCase:    store.BaseCase{ID: "bc-1", Name: "login succeeds"},
		InterfaceID: "if-1",
		APIDoc:      "doc",
		Environment: &apispec.EnvironmentProfile{
			ID:        "env-1",
			Name:      "staging",
			Variables: map[string]any{"base_url": server.URL, "password": "secret"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, replay.CaseStatusReady, c.Status)
	assert.Equal(t, 1, c.GenerationCount)
	assert.Equal(t, "bc-1", c.BaseCaseID)
	assert.Equal(t, "if-1", c.InterfaceID)
	assert.NotEmpty(t, c.ID)

	stored, err := s.RunnableCase(c.ID)
	require.NoError(t, err)
	assert.Equal(t, replay.CaseStatusReady, stored.Status)
	// The stored definition keeps its references; only the pre-flight
	// copy was interpolated.
	body := stored.Request.Body.(map[string]any)
	assert.Equal(t, "${{password}}", body["password"])
}

func TestRunnableWorkflowDisablesErroringCase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	s := newTestStore(t)
	caseJSON := runnableCaseJSON("/login")
	provider := &fakeProvider{runnable: []string{caseJSON, caseJSON, caseJSON}}
	workflow := NewRunnableCaseWorkflow(provider, s, nil, t.TempDir(), nil)

	c, err := workflow.Run(context.Background(), RunnableInput{
		BaseCase:    store.BaseCase{ID: "bc-1", Name: "login succeeds"},
		InterfaceID: "if-1",
		APIDoc:      "doc",
		Environment: &apispec.EnvironmentProfile{
			ID:        "env-1",
			Variables: map[string]any{"base_url": server.URL},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, replay.CaseStatusDisabled, c.Status)
	assert.Equal(t, 3, c.GenerationCount, "every recompilation attempt was used")
	assert.Empty(t, provider.runnable)

	stored, err := s.RunnableCases("if-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, replay.CaseStatusDisabled, stored[0].Status)
}

func TestRunnableWorkflowFailedAssertionsStillReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":500}`))
	}))
	defer server.Close()

	s := newTestStore(t)
	provider := &fakeProvider{runnable: []string{runnableCaseJSON("/login")}}
	workflow := NewRunnableCaseWorkflow(provider, s, nil, t.TempDir(), nil)

	c, err := workflow.Run(context.Background(), RunnableInput{
		BaseCase:    store.BaseCase{ID: "bc-1", Name: "login succeeds"},
		InterfaceID: "if-1",
		APIDoc:      "doc",
		Environment: &apispec.EnvironmentProfile{
			ID:        "env-1",
			Variables: map[string]any{"base_url": server.URL},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, c)

	// A failed check means the case executed cleanly end to end; only
	// execution errors disable a case.
	assert.Equal(t, replay.CaseStatusReady, c.Status)
	assert.Equal(t, 1, c.GenerationCount)
}

func TestRunnableWorkflowNothingParseableStoresNothing(t *testing.T) {
	s := newTestStore(t)
	garbage := make([]string, 9)
	for i := range garbage {
		garbage[i] = "no structured output"
	}
	provider := &fakeProvider{runnable: garbage}
	workflow := NewRunnableCaseWorkflow(provider, s, nil, t.TempDir(), nil)

	c, err := workflow.Run(context.Background(), RunnableInput{
		BaseCase:    store.BaseCase{ID: "bc-1", Name: "hopeless"},
		InterfaceID: "if-1",
		APIDoc:      "doc",
	})
	require.NoError(t, err)
	assert.Nil(t, c)

	stored, err := s.RunnableCases("if-1")
	require.NoError(t, err)
	assert.Empty(t, stored, "empty candidates are never persisted")
}
