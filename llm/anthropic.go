package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicEngine implements the Engine interface using the official
// Anthropic SDK's streaming API.
type AnthropicEngine struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// AnthropicConfig holds configuration for the Anthropic engine.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string // Optional custom endpoint
	Model     string
	MaxTokens int
}

// NewAnthropicEngine creates a new Anthropic engine using the official SDK.
func NewAnthropicEngine(cfg AnthropicConfig) (*AnthropicEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for anthropic")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for anthropic")
	}
	if cfg.MaxTokens == 0 {
		return nil, fmt.Errorf("max_tokens is required for anthropic")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicEngine{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Stream implements the Engine interface.
func (e *AnthropicEngine) Stream(ctx context.Context, req Request, emit func(Event)) (*Turn, error) {
	maxTokens := int64(e.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	// Retry only the connection, never a stream that already emitted.
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
	return nil, fmt.Errorf("anthropic stream failed: %w", lastErr)
}

// streamOnce runs a single streaming call. emitted reports whether any event
// reached the caller, which disqualifies the call from transport retry.
func (e *AnthropicEngine) streamOnce(ctx context.Context, params anthropic.MessageNewParams, emit func(Event)) (*Turn, bool, error) {
	stream := e.client.Messages.NewStreaming(ctx, params)

	var (
		content      strings.Builder
		thinking     strings.Builder
		message      anthropic.Message
		emitted      bool
		thinkingOpen bool
	)

	for stream.Next() {
		event := stream.Current()
		message.Accumulate(event)

		switch eventVariant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			emitted = true
			emit(Event{Type: EventStatus, Phase: "generating"})

		case anthropic.ContentBlockStartEvent:
			emitted = true
			switch eventVariant.ContentBlock.Type {
			case "thinking":
				thinkingOpen = true
				emit(Event{Type: EventThinkingStart})
			case "tool_use":
				emit(Event{
					Type:     EventToolUse,
					ToolName: eventVariant.ContentBlock.Name,
					ToolID:   eventVariant.ContentBlock.ID,
				})
			}

		case anthropic.ContentBlockDeltaEvent:
			emitted = true
			switch eventVariant.Delta.Type {
			case "text_delta":
				content.WriteString(eventVariant.Delta.Text)
				emit(Event{
					Type:     EventContentDelta,
					Delta:    eventVariant.Delta.Text,
					TotalLen: content.Len(),
				})
			case "thinking_delta":
				if !thinkingOpen {
					thinkingOpen = true
					emit(Event{Type: EventThinkingStart})
				}
				thinking.WriteString(eventVariant.Delta.Thinking)
				emit(Event{
					Type:     EventThinkingDelta,
					Delta:    eventVariant.Delta.Thinking,
					TotalLen: thinking.Len(),
				})
			}

		case anthropic.MessageStopEvent:
			emit(Event{Type: EventStatus, Phase: "done"})
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

	return &Turn{
		Content: content.String(),
		Reason:  mapAnthropicStop(message.StopReason),
	}, emitted, nil
}

// mapAnthropicStop maps SDK stop reasons onto the engine taxonomy.
func mapAnthropicStop(reason anthropic.StopReason) StopReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence, anthropic.StopReasonToolUse:
		return StopSuccess
	case anthropic.StopReasonMaxTokens:
		return StopTurnLimit
	case anthropic.StopReasonRefusal:
		return StopError
	default:
		return StopOther
	}
}
