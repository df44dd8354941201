package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIEngine implements the Engine interface using the official OpenAI
// SDK's streaming API.
type OpenAIEngine struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// OpenAIConfig holds configuration for the OpenAI engine.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // Optional custom endpoint
	Model     string
	MaxTokens int
}

// NewOpenAIEngine creates a new OpenAI engine using the official SDK.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for openai")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for openai")
	}
	if cfg.MaxTokens == 0 {
		return nil, fmt.Errorf("max_tokens is required for openai")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIEngine{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Stream implements the Engine interface.
func (e *OpenAIEngine) Stream(ctx context.Context, req Request, emit func(Event)) (*Turn, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	maxTokens := int64(e.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(e.model),
		Messages:  messages,
		MaxTokens: openai.Int(maxTokens),
	}

	var lastErr error
	for attempt := 0; attempt <= defaultTransportRetries; attempt++ {
		turn, emitted, err := e.streamOnce(ctx, params, emit)
		if err == nil {
			return turn, nil
		}
		lastErr = err

		if emitted || isBillingError(err) || !isRetryableError(err) || attempt == defaultTransportRetries {
			break
		}
		select {
		case <-ctx.Done():
			return &Turn{Reason: StopCancelled}, nil
		case <-time.After(defaultTransportBackoff * time.Duration(attempt+1)):
		}
	}
	return nil, fmt.Errorf("openai stream failed: %w", lastErr)
}

// streamOnce runs a single streaming call.
func (e *OpenAIEngine) streamOnce(ctx context.Context, params openai.ChatCompletionNewParams, emit func(Event)) (*Turn, bool, error) {
	stream := e.client.Chat.Completions.NewStreaming(ctx, params)

	var (
		content      strings.Builder
		acc          openai.ChatCompletionAccumulator
		emitted      bool
		finishReason string
	)

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if !emitted {
			emitted = true
			emit(Event{Type: EventStatus, Phase: "generating"})
		}

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			emit(Event{
				Type:     EventContentDelta,
				Delta:    choice.Delta.Content,
				TotalLen: content.Len(),
			})
		}

		for _, tc := range choice.Delta.ToolCalls {
			if tc.Function.Name != "" {
				emit(Event{
					Type:     EventToolUse,
					ToolName: tc.Function.Name,
					ToolID:   tc.ID,
				})
			}
		}

		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return &Turn{Content: content.String(), Reason: StopCancelled}, emitted, nil
		}
		return nil, emitted, err
	}
	if ctx.Err() != nil {
		return &Turn{Content: content.String(), Reason: StopCancelled}, emitted, nil
	}

	emit(Event{Type: EventStatus, Phase: "done"})

	if finishReason == "" && len(acc.Choices) > 0 {
		finishReason = acc.Choices[0].FinishReason
	}
	return &Turn{
		Content: content.String(),
		Reason:  mapOpenAIFinish(finishReason),
	}, emitted, nil
}

// mapOpenAIFinish maps finish_reason values onto the engine taxonomy.
func mapOpenAIFinish(reason string) StopReason {
	switch reason {
	case "stop", "tool_calls", "function_call":
		return StopSuccess
	case "length":
		return StopTurnLimit
	case "content_filter":
		return StopError
	default:
		return StopOther
	}
}
