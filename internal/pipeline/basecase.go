package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caseforge/caseforge/internal/infra/logger"
	"github.com/caseforge/caseforge/internal/llm/common"
	"github.com/caseforge/caseforge/internal/store"
)

const (
	maxParseAttempts     = 3
	maxSupplementRounds  = 3
	maxToolRounds        = 3
	coveragePassFallback = "100%"

	// streamProgressEvery is how much accumulated model output triggers
	// one progress event during streaming.
	streamProgressEvery = 4096
)

// BaseCaseWorkflow generates the base case set of an interface:
// generate, review coverage, supplement until covered, then atomically
// replace the stored set.
type BaseCaseWorkflow struct {
	provider common.Provider
	store    *store.Store
	emit     *Emitter
}

// NewBaseCaseWorkflow wires a workflow. The emitter may be nil.
func NewBaseCaseWorkflow(provider common.Provider, s *store.Store, emit *Emitter) *BaseCaseWorkflow {
	return &BaseCaseWorkflow{provider: provider, store: s, emit: emit}
}

// BaseCaseInput is the material one base case generation works from.
type BaseCaseInput struct {
	InterfaceID    string
	APIDoc         string
	DependencyDocs []string
	Knowledge      string
}

type coverageVerdict struct {
	Covered bool     `json:"covered"`
	Missing []string `json:"missing"`
}

// Run executes the workflow and returns the stored base cases.
func (w *BaseCaseWorkflow) Run(ctx context.Context, input BaseCaseInput) ([]store.BaseCase, error) {
	w.emit.Info("analyzing interface and generating base cases")
	cases, err := w.generate(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		// The coverage review sees the empty set and drives supplement
		// rounds, which can still produce a usable set.
		logger.Warn("initial base case generation empty",
			logger.String("interface_id", input.InterfaceID))
	}
	w.emit.Progress("generated initial base cases", map[string]any{"count": len(cases)})

	for round := 0; ; round++ {
		verdict, err := w.checkCoverage(ctx, input, cases)
		if err != nil {
			return nil, err
		}
		if verdict.Covered {
			w.emit.Info("coverage review passed")
			break
		}
		if round >= maxSupplementRounds {
			w.emit.Progress("coverage still incomplete after supplement limit, keeping current set",
				map[string]any{"missing": verdict.Missing})
			logger.Warn("coverage incomplete at supplement limit",
				logger.String("interface_id", input.InterfaceID),
				logger.Int("missing", len(verdict.Missing)))
			break
		}

		w.emit.Progress("supplementing missing scenarios", map[string]any{"missing": verdict.Missing})
		extra, err := w.supplement(ctx, input, cases, verdict.Missing)
		if err != nil {
			return nil, err
		}
		if len(extra) == 0 {
			w.emit.Info("supplement round produced no new cases, keeping current set")
			break
		}
		cases = append(cases, extra...)
	}

	if len(cases) == 0 {
		w.emit.Error("base case generation produced no parseable cases")
		return nil, fmt.Errorf("no base cases generated for interface %s", input.InterfaceID)
	}

	inserted, err := w.store.ReplaceBaseCases(input.InterfaceID, cases)
	if err != nil {
		return nil, fmt.Errorf("persist base cases: %w", err)
	}
	w.emit.Complete("base cases stored", map[string]any{"count": len(inserted)})
	return inserted, nil
}

// generate asks the model for the initial case set, retrying the call
// when the response does not parse. Exhausted retries yield an empty
// set rather than an error.
func (w *BaseCaseWorkflow) generate(ctx context.Context, input BaseCaseInput) ([]store.BaseCase, error) {
	system, user := BuildBaseCasePrompts(input.APIDoc, input.DependencyDocs, input.Knowledge)
	return w.chatForCases(ctx, system, user)
}

func (w *BaseCaseWorkflow) supplement(ctx context.Context, input BaseCaseInput, cases []store.BaseCase, missing []string) ([]store.BaseCase, error) {
	system, user := BuildSupplementPrompts(input.APIDoc, cases, missing, input.DependencyDocs)
	return w.chatForCases(ctx, system, user)
}

func (w *BaseCaseWorkflow) chatForCases(ctx context.Context, system, user string) ([]store.BaseCase, error) {
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := w.chat(ctx, system, user)
		if err != nil {
			return nil, err
		}

		cases, err := parseBaseCases(resp)
		if err == nil {
			return cases, nil
		}
		logger.Warn("base case response did not parse",
			logger.Int("attempt", attempt), logger.Err(err))
		w.emit.Info("response was not valid JSON, retrying (%d/%d)", attempt, maxParseAttempts)
	}
	return nil, nil
}

// checkCoverage asks for a structured verdict; a response that does not
// parse falls back to the legacy substring check on "100%".
func (w *BaseCaseWorkflow) checkCoverage(ctx context.Context, input BaseCaseInput, cases []store.BaseCase) (coverageVerdict, error) {
	system, user := BuildCoveragePrompts(input.APIDoc, cases)
	resp, err := w.chat(ctx, system, user)
	if err != nil {
		return coverageVerdict{}, err
	}

	var verdict coverageVerdict
	if raw := ExtractJSON(resp); raw != "" {
		if err := json.Unmarshal([]byte(raw), &verdict); err == nil {
			return verdict, nil
		}
	}
	return coverageVerdict{Covered: strings.Contains(resp, coveragePassFallback)}, nil
}

// chat runs one prompt through the provider with the interface search
// tool available, answering tool calls until the model produces a
// final message. Output is streamed so long generations stay visible
// on the event stream.
func (w *BaseCaseWorkflow) chat(ctx context.Context, system, user string) (string, error) {
	messages := []common.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	tools := []common.Tool{searchInterfacesTool()}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := w.provider.ChatStream(ctx, messages, tools, w.streamProgress())
		if err != nil {
			return "", fmt.Errorf("model request: %w", err)
		}
		if len(resp.FunctionCalls) == 0 {
			return resp.Message, nil
		}
		messages = append(messages, common.Message{
			Role:          "assistant",
			Content:       resp.Message,
			FunctionCalls: resp.FunctionCalls,
		})
		for _, call := range resp.FunctionCalls {
			messages = append(messages, common.Message{
				Role:             "user",
				FunctionResponse: w.answerToolCall(call),
			})
		}
	}

	// Tool budget spent, ask for the final answer without tools.
	resp, err := w.provider.ChatStream(ctx, messages, nil, w.streamProgress())
	if err != nil {
		return "", fmt.Errorf("model request: %w", err)
	}
	return resp.Message, nil
}

func (w *BaseCaseWorkflow) answerToolCall(call common.FunctionCall) *common.FunctionResponseData {
	response := map[string]any{}
	switch call.Name {
	case searchInterfacesToolName:
		query, _ := call.Arguments["query"].(string)
		w.emit.Info("model searching stored interfaces for %q", query)
		docs, err := searchInterfaces(w.store, query)
		if err != nil {
			response["error"] = err.Error()
		} else {
			response["results"] = docs
		}
	default:
		response["error"] = fmt.Sprintf("unknown tool %q", call.Name)
	}
	return &common.FunctionResponseData{ID: call.ID, Name: call.Name, Response: response}
}

// streamProgress reports accumulating model output in coarse steps.
func (w *BaseCaseWorkflow) streamProgress() common.StreamCallback {
	var chars, reported int
	return func(chunk string, isThought bool) {
		if isThought {
			return
		}
		chars += len(chunk)
		if chars-reported >= streamProgressEvery {
			reported = chars
			w.emit.Progress("receiving model output", map[string]any{"chars": chars})
		}
	}
}

// parseBaseCases decodes the model's case array, normalizing scalar
// steps/expected entries into sequences.
func parseBaseCases(content string) ([]store.BaseCase, error) {
	raw := ExtractJSONArray(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var decoded []struct {
		Name         string          `json:"name"`
		Steps        json.RawMessage `json:"steps"`
		Expected     json.RawMessage `json:"expected"`
		Dependencies json.RawMessage `json:"dependencies"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decode case array: %w", err)
	}

	cases := make([]store.BaseCase, 0, len(decoded))
	for _, d := range decoded {
		if d.Name == "" {
			continue
		}
		cases = append(cases, store.BaseCase{
			Name:         d.Name,
			Steps:        normalizeSequence(d.Steps),
			Expected:     normalizeSequence(d.Expected),
			Dependencies: normalizeSequence(d.Dependencies),
		})
	}
	return cases, nil
}

// normalizeSequence accepts either a JSON array or a scalar and always
// returns a slice.
func normalizeSequence(raw json.RawMessage) []any {
	if len(raw) == 0 {
		return nil
	}
	var seq []any
	if err := json.Unmarshal(raw, &seq); err == nil {
		return seq
	}
	var single any
	if err := json.Unmarshal(raw, &single); err == nil && single != nil {
		return []any{single}
	}
	return nil
}
