// Package llm adapts external streaming text-completion engines for
// multiplexed generation. An Engine issues one cancellable call and emits a
// typed event sequence; the Client layers buffering, timeout enforcement, and
// partial-result salvage on top.
package llm

import (
	"context"
)

// EventType identifies a stream event.
type EventType string

const (
	// EventThinkingStart fires when the engine begins a reasoning phase.
	EventThinkingStart EventType = "thinking_start"

	// EventThinkingDelta carries an incremental reasoning delta.
	EventThinkingDelta EventType = "thinking_delta"

	// EventToolUse fires when the engine invokes a tool.
	EventToolUse EventType = "tool_use"

	// EventContentDelta carries an incremental output delta.
	EventContentDelta EventType = "content_delta"

	// EventStatus reports an engine phase change.
	EventStatus EventType = "status"
)

// Event is one element of an engine's streamed event sequence.
type Event struct {
	Type      EventType
	SessionID string

	// Delta holds the incremental text for thinking and content events.
	Delta string

	// TotalLen is the cumulative buffered length after applying Delta.
	TotalLen int

	// ToolName and ToolID identify the invocation for EventToolUse.
	ToolName string
	ToolID   string

	// Phase carries the new phase for EventStatus.
	Phase string
}

// StopReason classifies how an engine call terminated.
type StopReason string

const (
	// StopSuccess means the engine completed the turn normally.
	StopSuccess StopReason = "success"

	// StopTurnLimit means the engine stopped at its turn/token limit.
	StopTurnLimit StopReason = "turn_limit"

	// StopError means the engine reported an execution error.
	StopError StopReason = "error"

	// StopCancelled means the call was aborted before completion.
	StopCancelled StopReason = "cancelled"

	// StopOther covers terminal outcomes the adapter could not classify.
	StopOther StopReason = "other"
)

// Turn is the terminal outcome of one engine call.
type Turn struct {
	// Content is the full assembled content. For non-success reasons it
	// holds whatever the engine produced before stopping.
	Content string

	// Reason classifies the terminal outcome.
	Reason StopReason

	// Detail carries the engine's own description of a failure, if any.
	Detail string
}

// Request describes one streaming call to an engine.
type Request struct {
	// Prompt is the user prompt.
	Prompt string

	// SystemPrompt is the system instruction, if any.
	SystemPrompt string

	// AllowedTools and DisallowedTools scope what the engine may invoke.
	// Adapters that cannot express tool scoping ignore them.
	AllowedTools    []string
	DisallowedTools []string

	// PartialMessages asks the engine to flush partial output eagerly.
	PartialMessages bool

	// MaxTurns bounds the engine's internal turn budget. Zero means the
	// adapter default; negative removes the bound where supported.
	MaxTurns int

	// MaxTokens bounds output length. Zero means the adapter default.
	MaxTokens int
}

// Engine is the interface for streaming completion engines.
//
// Stream issues one call and invokes emit synchronously for every event in
// order. Implementations must honor ctx cancellation by aborting the
// underlying call and returning a Turn with StopCancelled (or ctx.Err() when
// nothing was received). The returned Turn is the terminal outcome; a non-nil
// error is reserved for transport-level failures where no terminal outcome
// exists.
type Engine interface {
	Stream(ctx context.Context, req Request, emit func(Event)) (*Turn, error)
}
