package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GoogleEngine implements the Engine interface using the official Google
// Gemini SDK's streaming API. Each call builds its own GenerativeModel, so
// one engine is safe to share across concurrent streams.
type GoogleEngine struct {
	client    *genai.Client
	modelName string
	maxTokens int32
}

// GoogleConfig holds configuration for the Google engine.
type GoogleConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// NewGoogleEngine creates a new Google Gemini engine using the official SDK.
func NewGoogleEngine(cfg GoogleConfig) (*GoogleEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for google")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for google")
	}
	if cfg.MaxTokens == 0 {
		return nil, fmt.Errorf("max_tokens is required for google")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleEngine{
		client:    client,
		modelName: cfg.Model,
		maxTokens: int32(cfg.MaxTokens),
	}, nil
}

// Close closes the underlying client.
func (e *GoogleEngine) Close() error {
	return e.client.Close()
}

// Stream implements the Engine interface.
func (e *GoogleEngine) Stream(ctx context.Context, req Request, emit func(Event)) (*Turn, error) {
	model := e.modelFor(req)

	var lastErr error
	for attempt := 0; attempt <= defaultTransportRetries; attempt++ {
		turn, emitted, err := e.streamOnce(ctx, model, req.Prompt, emit)
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
	return nil, fmt.Errorf("google stream failed: %w", lastErr)
}

// modelFor builds the generative model for one request. Request overrides
// apply to the per-call model only, never to engine state.
func (e *GoogleEngine) modelFor(req Request) *genai.GenerativeModel {
	model := e.client.GenerativeModel(e.modelName)

	maxTokens := e.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	model.MaxOutputTokens = &maxTokens

	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}
	return model
}

// streamOnce runs a single streaming call.
func (e *GoogleEngine) streamOnce(ctx context.Context, model *genai.GenerativeModel, prompt string, emit func(Event)) (*Turn, bool, error) {
	iter := model.GenerateContentStream(ctx, genai.Text(prompt))

	var (
		content      strings.Builder
		emitted      bool
		finishReason genai.FinishReason
	)

	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return &Turn{Content: content.String(), Reason: StopCancelled}, emitted, nil
			}
			return nil, emitted, err
		}

		if !emitted {
			emitted = true
			emit(Event{Type: EventStatus, Phase: "generating"})
		}

		if len(resp.Candidates) == 0 {
			continue
		}
		candidate := resp.Candidates[0]
		if candidate.FinishReason != 0 {
			finishReason = candidate.FinishReason
		}
		if candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				content.WriteString(string(p))
				emit(Event{
					Type:     EventContentDelta,
					Delta:    string(p),
					TotalLen: content.Len(),
				})
			case genai.FunctionCall:
				emit(Event{
					Type:     EventToolUse,
					ToolName: p.Name,
					ToolID:   fmt.Sprintf("call_%s", p.Name),
				})
			}
		}
	}

	if ctx.Err() != nil {
		return &Turn{Content: content.String(), Reason: StopCancelled}, emitted, nil
	}

	emit(Event{Type: EventStatus, Phase: "done"})

	return &Turn{
		Content: content.String(),
		Reason:  mapGoogleFinish(finishReason),
		Detail:  finishDetail(finishReason),
	}, emitted, nil
}

// mapGoogleFinish maps Gemini finish reasons onto the engine taxonomy.
func mapGoogleFinish(reason genai.FinishReason) StopReason {
	switch reason {
	case genai.FinishReasonStop:
		return StopSuccess
	case genai.FinishReasonMaxTokens:
		return StopTurnLimit
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return StopError
	case genai.FinishReasonUnspecified:
		return StopSuccess
	default:
		return StopOther
	}
}

// finishDetail returns a description for failure reasons.
func finishDetail(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonSafety:
		return "response blocked by safety filter"
	case genai.FinishReasonRecitation:
		return "response blocked for recitation"
	default:
		return ""
	}
}
