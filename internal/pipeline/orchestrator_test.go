package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/internal/apispec"
	"github.com/caseforge/caseforge/internal/replay"
	"github.com/caseforge/caseforge/internal/store"
)

func seedOrchestratorStore(t *testing.T, s *store.Store, baseURL string) (interfaceID, environmentID string) {
	t.Helper()
	spec := &apispec.APISpec{
		Method:  "POST",
		Path:    "/login",
		Summary: "Authenticate a user",
	}
	require.NoError(t, s.WriteAPISpec(spec))

	env := &apispec.EnvironmentProfile{
		Name:      "staging",
		Variables: map[string]any{"base_url": baseURL},
	}
	require.NoError(t, s.WriteEnvironment(env))
	return spec.ID, env.ID
}

func TestOrchestratorRunSequential(t *testing.T) {
	server := loginServer(t)
	defer server.Close()

	s := newTestStore(t)
	interfaceID, environmentID := seedOrchestratorStore(t, s, server.URL)

	provider := &fakeProvider{
		generate: []string{twoBaseCases},
		coverage: []string{coveragePass},
		runnable: []string{runnableCaseJSON("/login"), runnableCaseJSON("/login")},
	}
	stream := NewStream(128)
	orch := NewOrchestrator(provider, s, nil, t.TempDir(), 0, stream)

	done := make(chan error, 1)
	go func() {
		defer stream.Close()
		done <- orch.Run(context.Background(), GenerateRequest{
			InterfaceID:   interfaceID,
			EnvironmentID: environmentID,
		})
	}()

	var events []Event
	for e := range stream.Events() {
		events = append(events, e)
	}
	require.NoError(t, <-done)

	baseCases, err := s.BaseCases(interfaceID)
	require.NoError(t, err)
	assert.Len(t, baseCases, 2)

	runnables, err := s.RunnableCases(interfaceID)
	require.NoError(t, err)
	require.Len(t, runnables, 2)
	for _, rc := range runnables {
		assert.Equal(t, replay.CaseStatusReady, rc.Status)
		assert.Equal(t, interfaceID, rc.InterfaceID)
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventComplete, last.Type)
	assert.Equal(t, 2, last.Data["base_cases"])
	assert.Equal(t, 2, last.Data["runnable_cases"])
	assert.Equal(t, 0, last.Data["failed"])
}

func TestOrchestratorRunConcurrent(t *testing.T) {
	server := loginServer(t)
	defer server.Close()

	s := newTestStore(t)
	interfaceID, environmentID := seedOrchestratorStore(t, s, server.URL)

	provider := &fakeProvider{
		generate: []string{twoBaseCases},
		coverage: []string{coveragePass},
		runnable: []string{runnableCaseJSON("/login"), runnableCaseJSON("/login")},
	}
	stream := NewStream(128)
	orch := NewOrchestrator(provider, s, nil, t.TempDir(), 2, stream)

	done := make(chan error, 1)
	go func() {
		defer stream.Close()
		done <- orch.Run(context.Background(), GenerateRequest{
			InterfaceID:   interfaceID,
			EnvironmentID: environmentID,
			Concurrent:    true,
		})
	}()
	for range stream.Events() {
	}
	require.NoError(t, <-done)

	runnables, err := s.RunnableCases(interfaceID)
	require.NoError(t, err)
	assert.Len(t, runnables, 2)
}

func TestOrchestratorCompilerSeesEnvironmentData(t *testing.T) {
	server := loginServer(t)
	defer server.Close()

	s := newTestStore(t)
	interfaceID, environmentID := seedOrchestratorStore(t, s, server.URL)

	provider := &fakeProvider{
		generate: []string{twoBaseCases},
		coverage: []string{coveragePass},
		runnable: []string{runnableCaseJSON("/login"), runnableCaseJSON("/login")},
	}
	stream := NewStream(128)
	orch := NewOrchestrator(provider, s, nil, t.TempDir(), 0, stream)

	done := make(chan error, 1)
	go func() {
		defer stream.Close()
		done <- orch.Run(context.Background(), GenerateRequest{
			InterfaceID:   interfaceID,
			EnvironmentID: environmentID,
		})
	}()
	for range stream.Events() {
	}
	require.NoError(t, <-done)

	// The compilation prompt carries the environment's variables.
	var compilerPrompts []string
	for _, req := range provider.requests {
		if len(req) >= 2 && strings.Contains(req[0].Content, "Compile the given test design") {
			compilerPrompts = append(compilerPrompts, req[1].Content)
		}
	}
	require.NotEmpty(t, compilerPrompts)
	for _, prompt := range compilerPrompts {
		assert.Contains(t, prompt, "Available test data")
		assert.Contains(t, prompt, "base_url")
		assert.Contains(t, prompt, server.URL)
	}
}

func TestOrchestratorUnknownInterface(t *testing.T) {
	s := newTestStore(t)
	stream := NewStream(8)
	orch := NewOrchestrator(&fakeProvider{}, s, nil, t.TempDir(), 0, stream)

	err := orch.Run(context.Background(), GenerateRequest{
		InterfaceID:   "nope",
		EnvironmentID: "env",
	})
	require.Error(t, err)
	stream.Close()

	var sawError bool
	for e := range stream.Events() {
		if e.Type == EventError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestOrchestratorIsolatesPerCaseFailures(t *testing.T) {
	server := loginServer(t)
	defer server.Close()

	s := newTestStore(t)
	interfaceID, environmentID := seedOrchestratorStore(t, s, server.URL)

	// The second base case never gets a parseable compilation.
	garbage := []string{runnableCaseJSON("/login")}
	for i := 0; i < 9; i++ {
		garbage = append(garbage, "nothing structured")
	}
	provider := &fakeProvider{
		generate: []string{twoBaseCases},
		coverage: []string{coveragePass},
		runnable: garbage,
	}
	stream := NewStream(128)
	orch := NewOrchestrator(provider, s, nil, t.TempDir(), 0, stream)

	done := make(chan error, 1)
	go func() {
		defer stream.Close()
		done <- orch.Run(context.Background(), GenerateRequest{
			InterfaceID:   interfaceID,
			EnvironmentID: environmentID,
		})
	}()

	var last Event
	for e := range stream.Events() {
		last = e
	}
	require.NoError(t, <-done)

	runnables, err := s.RunnableCases(interfaceID)
	require.NoError(t, err)
	assert.Len(t, runnables, 1, "the parseable case still lands")

	assert.Equal(t, EventComplete, last.Type)
	assert.Equal(t, 1, last.Data["runnable_cases"])
	assert.Equal(t, 1, last.Data["failed"])
}

func TestReplayCase(t *testing.T) {
	server := loginServer(t)
	defer server.Close()

	s := newTestStore(t)
	env := &apispec.EnvironmentProfile{
		Name:      "staging",
		Variables: map[string]any{"base_url": server.URL},
	}
	require.NoError(t, s.WriteEnvironment(env))

	c := &replay.RunnableCase{
		Name:        "stored login",
		InterfaceID: "if-1",
		Status:      replay.CaseStatusReady,
		Request: replay.RequestBlock{
			Method:  "POST",
			URL:     "/login",
			Headers: map[string]any{"Content-Type": "application/json"},
			Body:    map[string]any{"user": "alice"},
		},
		Assertions: replay.Assertions{Response: []replay.AssertionSpec{
			{Type: "http_code", Expected: 200},
			{Type: "not_null", Field: "data.token"},
		}},
	}
	require.NoError(t, s.InsertRunnableCase(c))

	result, err := ReplayCase(context.Background(), s, c.ID, env.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, replay.StatusSuccess, result.Status)

	_, err = ReplayCase(context.Background(), s, "missing", env.ID, nil)
	require.Error(t, err)
}
