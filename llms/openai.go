package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIProvider speaks OpenAI's chat-completions wire format over plain
// HTTP (no vendor SDK ships an idiomatic tools-aware client for this
// family, so the adapter talks JSON directly, the same way the upstream
// agent framework does).
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAIProvider constructs an adapter for the given model.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string       { return "openai:" + p.model }
func (p *OpenAIProvider) SupportsTools() bool { return true }

type oaMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []oaToolCallOut `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

type oaToolCallOut struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function oaFunction   `json:"function"`
}

type oaFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaTool struct {
	Type     string    `json:"type"`
	Function oaToolDef `json:"function"`
}

type oaToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	Temperature float64     `json:"temperature,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Tools       []oaTool    `json:"tools,omitempty"`
	Stream      bool        `json:"stream"`
}

type oaResponse struct {
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func toOAMessages(msgs []Message) []oaMessage {
	out := make([]oaMessage, len(msgs))
	for i, m := range msgs {
		om := oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, oaToolCallOut{
				ID: tc.ID, Type: "function",
				Function: oaFunction{Name: tc.Name, Arguments: string(args)},
			})
		}
		out[i] = om
	}
	return out
}

func toOATools(defs []ToolDefinition) []oaTool {
	out := make([]oaTool, len(defs))
	for i, d := range defs {
		out[i] = oaTool{Type: "function", Function: oaToolDef{Name: d.Name, Description: d.Description, Parameters: d.Parameters}}
	}
	return out
}

// Chat issues a single non-streaming request. mandatory per §4.6: tool
// schemas are always included for tool-capable requests; this adapter
// never sends a nil tools array when req.Tools is non-empty.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body := oaRequest{
		Model:       p.model,
		Messages:    toOAMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       toOATools(req.Tools),
	}

	raw, err := p.do(ctx, body)
	if err != nil {
		return ChatResponse{}, err
	}

	var resp oaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ChatResponse{}, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: fmt.Errorf("malformed response: %w", err)}
	}
	if resp.Error != nil {
		kind := ErrFatal
		if resp.Error.Type == "invalid_api_key" || resp.Error.Type == "authentication_error" {
			kind = ErrUnauthorized
		}
		return ChatResponse{}, &ProviderError{Kind: kind, Provider: p.Name(), Err: fmt.Errorf(resp.Error.Message)}
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: fmt.Errorf("no choices returned")}
	}

	msg := resp.Choices[0].Message
	var toolCalls []ToolCall
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		toolCalls = append(toolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	return ChatResponse{
		Text:      msg.Content,
		ToolCalls: toolCalls,
		Usage:     Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}, nil
}

// ChatStream is unsupported for this adapter; it returns a single-chunk
// stream derived from a non-streaming call, which keeps the Provider
// contract total without requiring SSE parsing for every back-end.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := p.Chat(ctx, req)
		if err != nil {
			ch <- StreamChunk{Err: err, Done: true}
			return
		}
		ch <- StreamChunk{Delta: resp.Text}
		ch <- StreamChunk{Done: true, Usage: &resp.Usage}
	}()
	return ch, nil
}

func (p *OpenAIProvider) do(ctx context.Context, body oaRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Kind: ErrTransient, Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Kind: ErrTransient, Provider: p.Name(), Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &ProviderError{Kind: ErrUnauthorized, Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return nil, &ProviderError{Kind: ErrTransient, Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))}
	}
	return raw, nil
}
