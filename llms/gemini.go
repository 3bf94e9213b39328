package llms

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider adapts Google's official genai SDK to the Provider
// contract. Unlike the OpenAI/Anthropic adapters (hand-rolled JSON, since
// no first-party Go SDK covers their tool-calling surface cleanly), this
// one is a thin wrapper over a real vendor client.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider constructs a provider from an already-configured
// genai client (the client owns transport/auth concerns).
func NewGeminiProvider(client *genai.Client, model string) *GeminiProvider {
	return &GeminiProvider{client: client, model: model}
}

func (p *GeminiProvider) Name() string        { return "gemini:" + p.model }
func (p *GeminiProvider) SupportsTools() bool { return true }

func toGeminiContents(msgs []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range msgs {
		if m.Role == "system" {
			continue // handled via GenerateContentConfig.SystemInstruction by the caller
		}
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		if role == "tool" {
			role = "function"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func toGeminiTools(defs []ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(defs))
	for i, d := range defs {
		decls[i] = &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var system string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			break
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
		Tools:       toGeminiTools(req.Tools),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, toGeminiContents(req.Messages), cfg)
	if err != nil {
		return ChatResponse{}, &ProviderError{Kind: classifyGeminiErr(err), Provider: p.Name(), Err: err}
	}
	if len(resp.Candidates) == 0 {
		return ChatResponse{}, &ProviderError{Kind: ErrFatal, Provider: p.Name(), Err: fmt.Errorf("no candidates returned")}
	}

	var text string
	var toolCalls []ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			toolCalls = append(toolCalls, ToolCall{Name: part.FunctionCall.Name, Arguments: part.FunctionCall.Args})
		}
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return ChatResponse{Text: text, ToolCalls: toolCalls, Usage: usage}, nil
}

// ChatStream is not implemented for the Gemini adapter in this runtime;
// turns fall back to the non-streaming call via the same single-chunk
// wrapper the other adapters use.
func (p *GeminiProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
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

func classifyGeminiErr(err error) ErrKind {
	// The genai SDK surfaces HTTP status through APIError; anything we
	// can't positively identify as auth-related is treated as transient
	// so the turn loop's retry/backoff gets a chance before giving up.
	var apiErr genai.APIError
	if ok := errors.As(err, &apiErr); ok {
		switch apiErr.Code {
		case 401, 403:
			return ErrUnauthorized
		case 400, 404, 422:
			return ErrFatal
		}
	}
	return ErrTransient
}
