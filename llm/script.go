package llm

import (
	"context"
)

// --- Scripted Engine for Testing ---

// ScriptEngine is a fake engine for tests. It replays a scripted event
// sequence in fixed-size chunks and terminates with a configured Turn.
type ScriptEngine struct {
	content   string
	chunkSize int
	reason    StopReason
	detail    string
	thinking  string
	toolUses  [][2]string // name, id pairs emitted before content
	err       error

	callCount   int
	lastRequest *Request
	cancelAfter int // emit this many content chunks, then honor ctx cancellation

	// StreamFunc can be overridden for custom behavior.
	StreamFunc func(ctx context.Context, req Request, emit func(Event)) (*Turn, error)
}

// NewScriptEngine creates a scripted engine that streams content in chunks
// and finishes successfully.
func NewScriptEngine(content string) *ScriptEngine {
	return &ScriptEngine{
		content:   content,
		chunkSize: 16,
		reason:    StopSuccess,
	}
}

// SetChunkSize sets the content delta size.
func (e *ScriptEngine) SetChunkSize(n int) {
	if n > 0 {
		e.chunkSize = n
	}
}

// SetStop sets the terminal reason and detail.
func (e *ScriptEngine) SetStop(reason StopReason, detail string) {
	e.reason = reason
	e.detail = detail
}

// SetThinking adds a thinking phase before content streaming.
func (e *ScriptEngine) SetThinking(text string) {
	e.thinking = text
}

// AddToolUse adds a tool invocation event before content streaming.
func (e *ScriptEngine) AddToolUse(name, id string) {
	e.toolUses = append(e.toolUses, [2]string{name, id})
}

// SetCancelAfter makes the engine block on ctx after n content chunks,
// simulating an in-flight call aborted by a deadline.
func (e *ScriptEngine) SetCancelAfter(n int) {
	e.cancelAfter = n
}

// SetError makes Stream fail with a transport error after streaming.
func (e *ScriptEngine) SetError(err error) {
	e.err = err
}

// CallCount returns the number of Stream calls made.
func (e *ScriptEngine) CallCount() int {
	return e.callCount
}

// LastRequest returns the most recent request.
func (e *ScriptEngine) LastRequest() *Request {
	return e.lastRequest
}

// Stream implements the Engine interface.
func (e *ScriptEngine) Stream(ctx context.Context, req Request, emit func(Event)) (*Turn, error) {
	e.callCount++
	r := req
	e.lastRequest = &r

	if e.StreamFunc != nil {
		return e.StreamFunc(ctx, req, emit)
	}

	emit(Event{Type: EventStatus, Phase: "generating"})

	if e.thinking != "" {
		emit(Event{Type: EventThinkingStart})
		emit(Event{Type: EventThinkingDelta, Delta: e.thinking, TotalLen: len(e.thinking)})
	}

	for _, tu := range e.toolUses {
		emit(Event{Type: EventToolUse, ToolName: tu[0], ToolID: tu[1]})
	}

	chunks := 0
	for i := 0; i < len(e.content); i += e.chunkSize {
		if ctx.Err() != nil {
			return &Turn{Content: e.content[:i], Reason: StopCancelled}, nil
		}
		end := i + e.chunkSize
		if end > len(e.content) {
			end = len(e.content)
		}
		emit(Event{Type: EventContentDelta, Delta: e.content[i:end]})
		chunks++
		if e.cancelAfter > 0 && chunks >= e.cancelAfter {
			<-ctx.Done()
			return &Turn{Content: e.content[:end], Reason: StopCancelled}, nil
		}
	}

	if e.err != nil {
		return nil, e.err
	}

	return &Turn{Content: e.content, Reason: e.reason, Detail: e.detail}, nil
}
