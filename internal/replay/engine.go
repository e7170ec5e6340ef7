package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"
)

// Engine executes one runnable case at a time against its environment.
// All steps in a run share the engine's environment map, so values
// saved by scripts or extractions are visible to everything after them.
type Engine struct {
	env       map[string]any
	db        *DBClient
	transport *Transport
	functions FunctionLibrary
	library   string
}

// EngineOption adjusts engine construction.
type EngineOption func(*Engine)

// WithTransport swaps the HTTP transport, mainly for tests.
func WithTransport(t *Transport) EngineOption {
	return func(e *Engine) { e.transport = t }
}

// WithFunctions installs the custom function library scripts can call.
func WithFunctions(lib FunctionLibrary) EngineOption {
	return func(e *Engine) { e.functions = lib }
}

// WithScriptLibrary installs the environment's script library source,
// whose definitions are in scope for every setup and teardown script.
func WithScriptLibrary(src string) EngineOption {
	return func(e *Engine) { e.library = src }
}

// NewEngine builds an engine over a private copy of env. The db client
// may be nil when the environment declares no databases.
func NewEngine(env map[string]any, db *DBClient, opts ...EngineOption) *Engine {
	copied := make(map[string]any, len(env))
	for k, v := range env {
		copied[k] = v
	}
	e := &Engine{
		env:       copied,
		db:        db,
		transport: NewTransport(30 * time.Second),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Env exposes the engine's working environment, including values added
// during execution.
func (e *Engine) Env() map[string]any { return e.env }

// Execute runs a case end to end and always returns a result, never an
// error: failed assertions end as failed, anything else that goes
// wrong ends as error with the cause recorded.
func (e *Engine) Execute(ctx context.Context, c *RunnableCase) *CaseResult {
	result := NewCaseResult(c.ID, c.Name)

	if c.Skip {
		result.Infof("case marked skip, not executing")
		result.Finish(StatusSkip)
		return result
	}

	run := c.Clone()
	err := e.runSafely(ctx, run, result)
	switch {
	case err == nil:
		result.Finish(StatusSuccess)
	case IsAssertionError(err):
		result.ErrorMessage = err.Error()
		result.Errorf("assertion failed: %v", err)
		result.Finish(StatusFailed)
	default:
		result.ErrorMessage = err.Error()
		result.Traceback = fmt.Sprintf("%+v", err)
		result.Errorf("execution error: %v", err)
		result.Finish(StatusError)
	}
	return result
}

func (e *Engine) runSafely(ctx context.Context, c *RunnableCase, result *CaseResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during execution: %v", r)
			result.Traceback = string(debug.Stack())
		}
	}()
	return e.run(ctx, c, result)
}

func (e *Engine) run(ctx context.Context, c *RunnableCase, result *CaseResult) error {
	for i := range c.Preconditions {
		step := &c.Preconditions[i]
		result.Infof("precondition %d/%d: %s", i+1, len(c.Preconditions), step.Name)
		resp, err := e.executeStep(ctx, &step.Request, result)
		if err != nil {
			return fmt.Errorf("precondition %q: %w", step.Name, err)
		}
		ApplyExtractions(step.Extract, resp, e.env, result)
	}

	result.Infof("main request: %s %s", c.Request.Method, c.Request.URL)
	resp, err := e.executeStep(ctx, &c.Request, result)
	if err != nil {
		return err
	}

	assertions, err := e.interpolateAssertions(c.Assertions, result)
	if err != nil {
		return err
	}
	return EvaluateAssertions(assertions, resp, result)
}

// executeStep runs one request block: setup script, interpolation, the
// HTTP call, then teardown with the response in scope. The exchange is
// recorded even when the transport fails.
func (e *Engine) executeStep(ctx context.Context, block *RequestBlock, result *CaseResult) (*Response, error) {
	host := &ScriptHost{Env: e.env, DB: e.db, Functions: e.functions, Library: e.library, Sink: result}
	pair := NewScriptPair(block.SetupScript, block.TeardownScript, host)

	if err := pair.RunSetup(ctx); err != nil {
		return nil, err
	}

	block.InterpolateRequest(e.env, result)

	resp, err := e.transport.Send(ctx, block, e.env, result)
	info := APIRequestInfo{
		InterfaceID: block.InterfaceID,
		Method:      block.Method,
		URL:         block.URL,
		Headers:     block.Headers,
		Params:      block.Params,
		Body:        block.Body,
	}
	if resp != nil {
		code := resp.StatusCode
		info.StatusCode = &code
		info.ResponseBody = responseBodyView(resp)
	}
	result.RecordRequest(info)
	if err != nil {
		result.Errorf("request failed: %v", err)
		return nil, err
	}

	if err := pair.RunTeardown(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func responseBodyView(resp *Response) any {
	if resp.JSON != nil {
		return resp.JSON
	}
	if resp.RawText == "" {
		return nil
	}
	return resp.RawText
}

// interpolateAssertions resolves ${{name}} references in assertion
// expectations through the same substitution the request body gets.
func (e *Engine) interpolateAssertions(a Assertions, result *CaseResult) (Assertions, error) {
	if len(a.Response) == 0 {
		return a, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return a, fmt.Errorf("encode assertions: %w", err)
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return a, fmt.Errorf("decode assertions: %w", err)
	}
	tree = Interpolate(tree, e.env, result)
	data, err = json.Marshal(tree)
	if err != nil {
		return a, fmt.Errorf("encode assertions: %w", err)
	}
	var out Assertions
	if err := json.Unmarshal(data, &out); err != nil {
		return a, fmt.Errorf("decode assertions: %w", err)
	}
	return out, nil
}
