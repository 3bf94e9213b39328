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

// OllamaProvider talks to a local Ollama daemon — the "local process for
// on-host models" external collaborator named in §6. No credentials are
// required, and tool calling support varies by model, so SupportsTools
// is configured rather than hardcoded.
type OllamaProvider struct {
	model         string
	host          string
	supportsTools bool
	client        *http.Client
}

func NewOllamaProvider(host, model string, supportsTools bool) *OllamaProvider {
	if host == "" {
		host = "http://localhost:11434"
	}
	return &OllamaProvider{
		model: model, host: host, supportsTools: supportsTools,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OllamaProvider) Name() string        { return "ollama:" + p.model }
func (p *OllamaProvider) SupportsTools() bool { return p.supportsTools }

type ollamaMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []ollamaToolCl `json:"tool_calls,omitempty"`
}

type ollamaToolCl struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	messages := make([]ollamaMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}

	var tools []ollamaTool
	if p.supportsTools {
		tools = make([]ollamaTool, len(req.Tools))
		for i, d := range req.Tools {
			tools[i].Type = "function"
			tools[i].Function.Name = d.Name
			tools[i].Function.Description = d.Description
			tools[i].Function.Parameters = d.Parameters
		}
	}

	payload, _ := json.Marshal(ollamaRequest{Model: p.model, Messages: messages, Tools: tools})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return ChatResponse{}, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, &ProviderError{Kind: ErrTransient, Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, &ProviderError{Kind: ErrTransient, Provider: p.Name(), Err: err}
	}
	if resp.StatusCode >= 500 {
		return ChatResponse{}, &ProviderError{Kind: ErrTransient, Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return ChatResponse{}, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))}
	}

	var out ollamaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ChatResponse{}, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: fmt.Errorf("malformed response: %w", err)}
	}
	if out.Error != "" {
		return ChatResponse{}, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: fmt.Errorf(out.Error)}
	}

	var toolCalls []ToolCall
	for _, tc := range out.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}

	return ChatResponse{
		Text: out.Message.Content, ToolCalls: toolCalls,
		Usage: Usage{InputTokens: out.PromptEvalCount, OutputTokens: out.EvalCount},
	}, nil
}

func (p *OllamaProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
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
