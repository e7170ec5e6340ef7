package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/caseforge/caseforge/internal/apispec"
	"github.com/caseforge/caseforge/internal/infra/logger"
	"github.com/caseforge/caseforge/internal/llm/common"
	"github.com/caseforge/caseforge/internal/replay"
	"github.com/caseforge/caseforge/internal/store"
	"github.com/caseforge/caseforge/internal/toolkit"
)

// DefaultConcurrency bounds parallel runnable case compilation.
const DefaultConcurrency = 7

// Orchestrator runs the full generation pipeline for one interface:
// base cases first, then a runnable case per base case.
type Orchestrator struct {
	provider    common.Provider
	store       *store.Store
	functions   *toolkit.Library
	uploadsDir  string
	concurrency int
	emit        *Emitter
}

// NewOrchestrator wires an orchestrator. A nil stream runs silently;
// concurrency <= 0 falls back to the default bound.
func NewOrchestrator(provider common.Provider, s *store.Store, functions *toolkit.Library, uploadsDir string, concurrency int, stream *Stream) *Orchestrator {
	if functions == nil {
		functions = toolkit.DefaultLibrary()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		provider:    provider,
		store:       s,
		functions:   functions,
		uploadsDir:  uploadsDir,
		concurrency: concurrency,
		emit:        NewEmitter(stream),
	}
}

// GenerateRequest names what to generate and where to pre-flight it.
type GenerateRequest struct {
	InterfaceID    string
	EnvironmentID  string
	Knowledge      string
	AdditionalInfo string
	Concurrent     bool
}

// Run executes the pipeline. Individual case failures are reported on
// the stream and do not abort the remaining cases.
func (o *Orchestrator) Run(ctx context.Context, req GenerateRequest) error {
	spec, err := o.store.APISpec(req.InterfaceID)
	if err != nil {
		o.emit.Error("loading interface: %v", err)
		return err
	}
	group, err := o.store.DependencyGroup(req.InterfaceID)
	if err != nil {
		o.emit.Error("loading dependencies: %v", err)
		return err
	}
	env, err := o.store.Environment(req.EnvironmentID)
	if err != nil {
		o.emit.Error("loading environment: %v", err)
		return err
	}

	apiDoc := spec.Render()
	dependencyDocs := group.RenderDocs()

	baseWorkflow := NewBaseCaseWorkflow(o.provider, o.store, o.emit)
	baseCases, err := baseWorkflow.Run(ctx, BaseCaseInput{
		InterfaceID:    req.InterfaceID,
		APIDoc:         apiDoc,
		DependencyDocs: dependencyDocs,
		Knowledge:      req.Knowledge,
	})
	if err != nil {
		o.emit.Error("base case generation failed: %v", err)
		return err
	}

	o.emit.Info("compiling %d base cases into runnable cases", len(baseCases))

	var stored, failed int
	if req.Concurrent {
		stored, failed = o.runConcurrent(ctx, req, baseCases, apiDoc, dependencyDocs, env)
	} else {
		stored, failed = o.runSequential(ctx, req, baseCases, apiDoc, dependencyDocs, env)
	}

	if err := ctx.Err(); err != nil {
		o.emit.Error("generation cancelled: %v", err)
		return err
	}
	o.emit.Complete("generation finished", map[string]any{
		"base_cases":     len(baseCases),
		"runnable_cases": stored,
		"failed":         failed,
	})
	return nil
}

func (o *Orchestrator) runnableInput(req GenerateRequest, bc store.BaseCase, apiDoc string, dependencyDocs []string, env *apispec.EnvironmentProfile) RunnableInput {
	input := RunnableInput{
		BaseCase:       bc,
		InterfaceID:    req.InterfaceID,
		APIDoc:         apiDoc,
		DependencyDocs: dependencyDocs,
		Environment:    env,
		AdditionalInfo: req.AdditionalInfo,
	}
	if env != nil {
		// The compiler sees the environment's variables so generated
		// requests can reference them with ${{name}}.
		input.TestData = env.Snapshot()
	}
	return input
}

func (o *Orchestrator) runSequential(ctx context.Context, req GenerateRequest, baseCases []store.BaseCase, apiDoc string, dependencyDocs []string, env *apispec.EnvironmentProfile) (stored, failed int) {
	workflow := NewRunnableCaseWorkflow(o.provider, o.store, o.functions, o.uploadsDir, o.emit)
	for _, bc := range baseCases {
		if ctx.Err() != nil {
			return stored, failed
		}
		c, err := workflow.Run(ctx, o.runnableInput(req, bc, apiDoc, dependencyDocs, env))
		if err != nil {
			failed++
			o.emit.Error("base case %q: %v", bc.Name, err)
			logger.Error("runnable case workflow failed",
				logger.String("base_case", bc.Name), logger.Err(err))
			continue
		}
		if c != nil {
			stored++
		} else {
			failed++
		}
	}
	return stored, failed
}

// runConcurrent fans the base cases out over a bounded worker set. Each
// workflow emits onto the shared stream, so per-case event order is
// preserved while cases interleave.
func (o *Orchestrator) runConcurrent(ctx context.Context, req GenerateRequest, baseCases []store.BaseCase, apiDoc string, dependencyDocs []string, env *apispec.EnvironmentProfile) (stored, failed int) {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, o.concurrency)
	)

	for _, bc := range baseCases {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return stored, failed
		}

		wg.Add(1)
		go func(bc store.BaseCase) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					o.emit.Error("base case %q: panic: %v", bc.Name, r)
				}
			}()

			workflow := NewRunnableCaseWorkflow(o.provider, o.store, o.functions, o.uploadsDir, o.emit)
			c, err := workflow.Run(ctx, o.runnableInput(req, bc, apiDoc, dependencyDocs, env))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failed++
				o.emit.Error("base case %q: %v", bc.Name, err)
			case c != nil:
				stored++
			default:
				failed++
			}
		}(bc)
	}

	wg.Wait()
	return stored, failed
}

// ReplayCase executes one stored runnable case against an environment.
func ReplayCase(ctx context.Context, s *store.Store, caseID, environmentID string, functions *toolkit.Library) (*replay.CaseResult, error) {
	c, err := s.RunnableCase(caseID)
	if err != nil {
		return nil, err
	}
	env, err := s.Environment(environmentID)
	if err != nil {
		return nil, err
	}

	var db *replay.DBClient
	if len(env.Databases) > 0 {
		db, err = replay.NewDBClient(env.Databases)
		if err != nil {
			return nil, fmt.Errorf("database setup: %w", err)
		}
	}
	defer db.Close()

	if functions == nil {
		functions = toolkit.DefaultLibrary()
	}
	opts := []replay.EngineOption{replay.WithFunctions(functions)}
	if env.FunctionLibrary != "" {
		opts = append(opts, replay.WithScriptLibrary(env.FunctionLibrary))
	}
	engine := replay.NewEngine(env.Snapshot(), db, opts...)
	return engine.Execute(ctx, c), nil
}
