package dispatch

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/nicdavidson/homestead/pkg/aitokens"
	"github.com/nicdavidson/homestead/pkg/apierr"
)

// HTTPBackend drives an OpenAI-compatible chat-completions endpoint
// (wired for the xai-grok model tag), streaming the response body,
// grounded on the corpus's direct use of
// github.com/sashabaranov/go-openai for a streaming chat client.
// HTTP preemption is cooperative: cancelling ctx closes the transport.
type HTTPBackend struct {
	Client       *openai.Client
	ModelRef     string
	SystemPrompt string
}

// NewHTTPBackend builds a backend pointed at baseURL with apiKey,
// matching the OpenAI-compatible REST shape xai-grok and similar
// backends expose.
func NewHTTPBackend(baseURL, apiKey, modelRef, systemPrompt string) *HTTPBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &HTTPBackend{Client: openai.NewClientWithConfig(cfg), ModelRef: modelRef, SystemPrompt: systemPrompt}
}

func (b *HTTPBackend) StreamTurn(ctx context.Context, priorHandle, modelRef, userText string, onDelta OnDelta) (Result, error) {
	if b.Client == nil {
		return Result{}, apierr.New(apierr.CodeConfig, "http backend has no configured client")
	}
	if modelRef == "" {
		modelRef = b.ModelRef
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if b.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: b.SystemPrompt})
	}
	// The HTTP backend has no server-side thread resumption; priorHandle
	// is accepted for interface symmetry but the dispatcher is
	// responsible for replaying history if the backend requires it.
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})

	stream, err := b.Client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    modelRef,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return Result{}, classifyOpenAIError(err)
	}
	defer stream.Close()

	var textBuilder strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, apierr.Wrap(apierr.CodeTimeout, "http backend turn cancelled or timed out", ctx.Err())
			}
			return Result{}, classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		textBuilder.WriteString(delta)
		onDelta(delta)
	}
	text := textBuilder.String()
	return Result{Text: text, Usage: httpUsage(messages, text, modelRef)}, nil
}

// httpUsage estimates prompt tokens across the full outgoing message set
// (system prompt included, when configured) and completion tokens from
// the accumulated response text.
func httpUsage(messages []openai.ChatCompletionMessage, responseText, modelRef string) Usage {
	turn := make([]aitokens.Message, len(messages))
	for i, m := range messages {
		turn[i] = aitokens.Message{Role: m.Role, Content: m.Content}
	}
	prompt, err := aitokens.EstimateTurn(turn, modelRef)
	if err != nil {
		prompt = 0
	}
	completion, err := aitokens.EstimateText(responseText, modelRef)
	if err != nil {
		completion = 0
	}
	return Usage{PromptTokens: prompt, CompletionTokens: completion}
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 {
			return apierr.Wrap(apierr.CodeTransport, "http backend server error", err)
		}
		return apierr.Wrap(apierr.CodeBackend, "http backend rejected request", err)
	}
	return apierr.Wrap(apierr.CodeTransport, "http backend request failed", err)
}
