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

// AnthropicProvider speaks the Messages API wire format over plain HTTP.
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.anthropic.com/v1",
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *AnthropicProvider) Name() string       { return "anthropic:" + p.model }
func (p *AnthropicProvider) SupportsTools() bool { return true }

type anthMessage struct {
	Role    string       `json:"role"`
	Content []anthBlock  `json:"content"`
}

type anthBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthRequest struct {
	Model       string        `json:"model"`
	Messages    []anthMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	Tools       []anthTool    `json:"tools,omitempty"`
}

type anthResponse struct {
	Content []anthBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// toAnthropic splits out any leading system message (Anthropic takes it
// as a top-level field, not a message role) and converts the rest.
func toAnthropic(msgs []Message) (string, []anthMessage) {
	var system string
	var out []anthMessage
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = m.Content
		case "tool":
			out = append(out, anthMessage{Role: "user", Content: []anthBlock{{
				Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content,
			}}})
		default:
			blocks := []anthBlock{}
			if m.Content != "" {
				blocks = append(blocks, anthBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
			}
			out = append(out, anthMessage{Role: m.Role, Content: blocks})
		}
	}
	return system, out
}

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	system, messages := toAnthropic(req.Messages)

	tools := make([]anthTool, len(req.Tools))
	for i, d := range req.Tools {
		tools[i] = anthTool{Name: d.Name, Description: d.Description, InputSchema: d.Parameters}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	body := anthRequest{
		Model: p.model, Messages: messages, System: system,
		MaxTokens: maxTokens, Temperature: req.Temperature, Tools: tools,
	}

	raw, err := p.do(ctx, body)
	if err != nil {
		return ChatResponse{}, err
	}

	var resp anthResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ChatResponse{}, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: fmt.Errorf("malformed response: %w", err)}
	}
	if resp.Error != nil {
		kind := ErrFatal
		if resp.Error.Type == "authentication_error" || resp.Error.Type == "permission_error" {
			kind = ErrUnauthorized
		}
		return ChatResponse{}, &ProviderError{Kind: kind, Provider: p.Name(), Err: fmt.Errorf(resp.Error.Message)}
	}

	var text string
	var toolCalls []ToolCall
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			text += b.Text
		case "tool_use":
			toolCalls = append(toolCalls, ToolCall{ID: b.ID, Name: b.Name, Arguments: b.Input})
		}
	}

	return ChatResponse{
		Text: text, ToolCalls: toolCalls,
		Usage: Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}, nil
}

func (p *AnthropicProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
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

func (p *AnthropicProvider) do(ctx context.Context, body anthRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

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
