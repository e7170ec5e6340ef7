package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caseforge/caseforge/internal/apispec"
	"github.com/caseforge/caseforge/internal/infra/logger"
	"github.com/caseforge/caseforge/internal/llm/common"
	"github.com/caseforge/caseforge/internal/replay"
	"github.com/caseforge/caseforge/internal/store"
	"github.com/caseforge/caseforge/internal/toolkit"
)

// maxGenerationAttempts caps how many times one base case is recompiled
// when its pre-flight run disables it.
const maxGenerationAttempts = 3

// RunnableCaseWorkflow compiles one base case into a runnable case,
// verifies it with a pre-flight execution and persists the outcome.
type RunnableCaseWorkflow struct {
	provider   common.Provider
	store      *store.Store
	functions  *toolkit.Library
	uploadsDir string
	emit       *Emitter
}

// NewRunnableCaseWorkflow wires a workflow. The emitter may be nil.
func NewRunnableCaseWorkflow(provider common.Provider, s *store.Store, functions *toolkit.Library, uploadsDir string, emit *Emitter) *RunnableCaseWorkflow {
	if functions == nil {
		functions = toolkit.DefaultLibrary()
	}
	return &RunnableCaseWorkflow{
		provider:   provider,
		store:      s,
		functions:  functions,
		uploadsDir: uploadsDir,
		emit:       emit,
	}
}

// RunnableInput is the material for compiling one base case.
type RunnableInput struct {
	BaseCase       store.BaseCase
	InterfaceID    string
	APIDoc         string
	DependencyDocs []string
	Environment    *apispec.EnvironmentProfile
	TestData       map[string]any
	AdditionalInfo string
}

// Run compiles, pre-flights and persists one runnable case. The
// returned case is nil when nothing persistable came out.
func (w *RunnableCaseWorkflow) Run(ctx context.Context, input RunnableInput) (*replay.RunnableCase, error) {
	files, err := toolkit.InspectUploadDir(w.uploadsDir)
	if err != nil {
		logger.Warn("upload directory scan failed", logger.Err(err))
		files = nil
	}
	docs := RunnableInputDocs{
		APIDoc:         input.APIDoc,
		DependencyDocs: input.DependencyDocs,
		TestData:       input.TestData,
		Files:          files,
		Functions:      w.functions.Descriptors(),
		AdditionalInfo: input.AdditionalInfo,
	}
	if input.Environment != nil {
		docs.LibrarySource = input.Environment.FunctionLibrary
	}

	var candidate *replay.RunnableCase
	generationCount := 0
	status := replay.CaseStatusDisabled

	for generationCount < maxGenerationAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		generationCount++

		w.emit.Progress("compiling runnable case", map[string]any{
			"base_case": input.BaseCase.Name,
			"attempt":   generationCount,
		})
		candidate, err = w.generate(ctx, input.BaseCase, docs)
		if err != nil {
			return nil, err
		}
		if candidate.Empty() {
			w.emit.Info("compilation attempt %d produced no case data", generationCount)
			continue
		}

		result := w.preflight(ctx, candidate, input.Environment)
		if result.Status == replay.StatusError {
			status = replay.CaseStatusDisabled
			w.emit.Info("pre-flight errored for %q: %s", candidate.Name, result.ErrorMessage)
		} else {
			status = replay.CaseStatusReady
			w.emit.Info("pre-flight finished for %q with status %s", candidate.Name, result.Status)
			break
		}
	}

	if candidate == nil || candidate.Empty() {
		w.emit.Error("no runnable case produced for base case %q", input.BaseCase.Name)
		return nil, nil
	}

	candidate.BaseCaseID = input.BaseCase.ID
	candidate.InterfaceID = input.InterfaceID
	candidate.Status = status
	candidate.GenerationCount = generationCount
	if err := w.store.InsertRunnableCase(candidate); err != nil {
		return nil, fmt.Errorf("persist runnable case: %w", err)
	}
	w.emit.Complete("runnable case stored", map[string]any{
		"id":     candidate.ID,
		"name":   candidate.Name,
		"status": candidate.Status,
	})
	return candidate, nil
}

// generate asks the model for the runnable case JSON, retrying parse
// failures. Exhausted retries yield an empty candidate.
func (w *RunnableCaseWorkflow) generate(ctx context.Context, baseCase store.BaseCase, docs RunnableInputDocs) (*replay.RunnableCase, error) {
	system, user := BuildRunnableCasePrompts(baseCase, docs)
	messages := []common.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		resp, err := w.provider.Chat(ctx, messages, nil)
		if err != nil {
			return nil, fmt.Errorf("model request: %w", err)
		}

		raw := ExtractJSON(resp.Message)
		if raw == "" {
			logger.Warn("runnable case response had no JSON object", logger.Int("attempt", attempt))
			continue
		}
		var c replay.RunnableCase
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			logger.Warn("runnable case response did not parse",
				logger.Int("attempt", attempt), logger.Err(err))
			continue
		}
		return &c, nil
	}
	return &replay.RunnableCase{}, nil
}

// preflight executes a deep copy of the candidate against the target
// environment. The stored case keeps its ${{...}} references; only the
// copy gets interpolated and mutated.
func (w *RunnableCaseWorkflow) preflight(ctx context.Context, candidate *replay.RunnableCase, env *apispec.EnvironmentProfile) *replay.CaseResult {
	var vars map[string]any
	var db *replay.DBClient
	if env != nil {
		vars = env.Snapshot()
		if len(env.Databases) > 0 {
			var err error
			db, err = replay.NewDBClient(env.Databases)
			if err != nil {
				logger.Warn("database setup failed, scripts will run without db", logger.Err(err))
				db = nil
			}
		}
	}
	defer db.Close()

	opts := []replay.EngineOption{replay.WithFunctions(w.functions)}
	if env != nil && env.FunctionLibrary != "" {
		opts = append(opts, replay.WithScriptLibrary(env.FunctionLibrary))
	}
	engine := replay.NewEngine(vars, db, opts...)
	return engine.Execute(ctx, candidate.Clone())
}
