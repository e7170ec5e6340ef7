package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/caseforge/caseforge/internal/infra/logger"
)

const (
	// Claude API limits
	MaxTokensNonStreaming = 8192  // Max tokens for regular Chat()
	MaxTokensStreaming    = 16384 // Max tokens for ChatStream()
)

type Client struct {
	client anthropic.Client
	model  string
}

type Message struct {
	Role             string
	Content          string
	ReasoningContent string
	FunctionResponse *FunctionResponseData
	FunctionCalls    []FunctionCallData
}

type FunctionResponseData struct {
	ID       string // tool_use_id from the original tool use block
	Name     string
	Response map[string]interface{}
}

type FunctionCallData struct {
	ID   string
	Name string
	Args map[string]interface{}
}

type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// NewClient creates a new Claude client (uses env vars)
func NewClient() (*Client, error) {
	return NewClientWithConfig("", "", "")
}

// NewClientWithConfig creates a new Claude client with explicit API key, model and base URL
func NewClientWithConfig(apiKey, model, baseURL string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	if model == "" {
		model = os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = string(anthropic.ModelClaudeSonnet4_20250514)
		}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL == "" {
		baseURL = os.Getenv("ANTHROPIC_BASE_URL")
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Client{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// generateToolInputSchema creates a ToolInputSchemaParam from a map
func generateToolInputSchema(inputSchema map[string]interface{}) anthropic.ToolInputSchemaParam {
	properties := make(map[string]jsonschema.Schema)

	// inputSchema has structure: {type: "object", properties: {...}, required: [...]}
	propertiesRaw, ok := inputSchema["properties"].(map[string]interface{})
	if !ok {
		return anthropic.ToolInputSchemaParam{}
	}

	for propName, propDef := range propertiesRaw {
		propMap, ok := propDef.(map[string]interface{})
		if !ok {
			continue
		}

		schema := jsonschema.Schema{}
		if typ, ok := propMap["type"].(string); ok {
			schema.Type = typ
		}
		if desc, ok := propMap["description"].(string); ok {
			schema.Description = desc
		}

		properties[propName] = schema
	}

	return anthropic.ToolInputSchemaParam{
		Properties: properties,
	}
}

type StreamCallback func(chunk string, isThought bool)

type FunctionCallResult struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// TokenUsage represents token usage information
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// buildParams converts messages and tools into the request payload.
// System messages become cached system blocks; tool calls and results
// become their respective content blocks.
func (c *Client) buildParams(messages []Message, tools []Tool, maxTokens int64) anthropic.MessageNewParams {
	var systemBlocks []anthropic.TextBlockParam

	var anthropicTools []anthropic.ToolUnionParam
	for _, t := range tools {
		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: generateToolInputSchema(t.InputSchema),
		}
		anthropicTools = append(anthropicTools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	var anthropicMessages []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			if msg.Content != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{
					Text:         msg.Content,
					CacheControl: anthropic.CacheControlEphemeralParam{},
				})
			}
			continue
		}

		var contentBlocks []anthropic.ContentBlockParamUnion

		if msg.Content != "" {
			contentBlocks = append(contentBlocks, anthropic.ContentBlockParamUnion{
				OfText: &anthropic.TextBlockParam{Text: msg.Content},
			})
		}

		for _, fc := range msg.FunctionCalls {
			contentBlocks = append(contentBlocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    fc.ID,
					Name:  fc.Name,
					Input: fc.Args,
				},
			})
		}

		if msg.FunctionResponse != nil {
			responseJSON, _ := json.Marshal(msg.FunctionResponse.Response)
			contentBlocks = append(contentBlocks, anthropic.NewToolResultBlock(
				msg.FunctionResponse.ID, // tool_use_id, not Name
				string(responseJSON),
				false,
			))
		}

		if len(contentBlocks) > 0 {
			role := anthropic.MessageParamRoleUser
			if msg.Role == "assistant" || msg.Role == "model" {
				role = anthropic.MessageParamRoleAssistant
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    role,
				Content: contentBlocks,
			})
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages:  anthropicMessages,
	}
	if len(systemBlocks) > 0 {
		// Cached system blocks: if the prompt is too small the API just
		// skips caching, no error.
		params.System = systemBlocks
	}
	if len(anthropicTools) > 0 {
		params.Tools = anthropicTools
	}
	return params
}

// extractContent pulls the text and tool calls out of a final message.
func extractContent(content []anthropic.ContentBlockUnion) (string, []FunctionCallResult) {
	var responseText string
	var functionCalls []FunctionCallResult
	for _, block := range content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			responseText += block.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal(block.Input, &args); err != nil {
				logger.Warn("Failed to unmarshal tool args", logger.Err(err))
				continue
			}
			functionCalls = append(functionCalls, FunctionCallResult{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
		}
	}
	return responseText, functionCalls
}

// Chat sends a non-streaming chat request
func (c *Client) Chat(ctx context.Context, messages []Message, tools []Tool) (string, []FunctionCallResult, *TokenUsage, error) {
	if len(messages) == 0 {
		return "", nil, nil, fmt.Errorf("no messages provided")
	}

	params := c.buildParams(messages, tools, MaxTokensNonStreaming)

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		logger.Error("Anthropic error", logger.Err(err))
		return "", nil, nil, fmt.Errorf("anthropic error: %w", err)
	}

	responseText, functionCalls := extractContent(message.Content)

	tokenUsage := &TokenUsage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}
	return responseText, functionCalls, tokenUsage, nil
}

// ChatStream sends a streaming chat request
func (c *Client) ChatStream(ctx context.Context, messages []Message, tools []Tool, callback StreamCallback) (string, []FunctionCallResult, *TokenUsage, error) {
	if len(messages) == 0 {
		return "", nil, nil, fmt.Errorf("no messages provided")
	}

	params := c.buildParams(messages, tools, MaxTokensStreaming)

	stream := c.client.Messages.NewStreaming(ctx, params)
	accumulatedMessage := anthropic.Message{}
	var inputTokens, outputTokens int64

	for stream.Next() {
		event := stream.Current()

		// Token usage arrives on the delta event before Accumulate sees it
		if deltaEvent, ok := event.AsAny().(anthropic.MessageDeltaEvent); ok {
			inputTokens = int64(deltaEvent.Usage.InputTokens)
			outputTokens = int64(deltaEvent.Usage.OutputTokens)
		}

		_ = accumulatedMessage.Accumulate(event)

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.ThinkingDelta:
				callback(deltaVariant.Thinking, true)
			case anthropic.TextDelta:
				callback(deltaVariant.Text, false)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return "", nil, nil, fmt.Errorf("stream error: %w", err)
	}

	responseText, functionCalls := extractContent(accumulatedMessage.Content)

	logger.Debug("Token usage",
		zap.Int64("input_tokens", inputTokens),
		zap.Int64("output_tokens", outputTokens),
	)

	tokenUsage := &TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
	return responseText, functionCalls, tokenUsage, nil
}

// Close is a no-op for the Claude client
func (c *Client) Close() {
	// No-op
}
