package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vinayprograms/genmux/errors"
	"github.com/vinayprograms/genmux/logging"
)

const (
	// salvageThreshold is the minimum buffered length for a failed call to
	// yield a salvage value instead of an error.
	salvageThreshold = 50

	// TruncationPrefix opens the annotation appended to salvaged content.
	// Result aggregation detects it and applies the partial-output penalty.
	TruncationPrefix = "[output truncated:"

	// DegradedNotice is appended to content produced by a degraded attempt.
	DegradedNotice = "[degraded: generated with a simplified prompt]"
)

// Truncated suffixes content with a visible truncation annotation.
func Truncated(content string, reason StopReason) string {
	return fmt.Sprintf("%s\n\n%s generation stopped early (%s)]", content, TruncationPrefix, reason)
}

// Degraded suffixes content with the degraded-mode annotation.
func Degraded(content string) string {
	return content + "\n\n" + DegradedNotice
}

// IsAnnotated reports whether content carries a truncation or degradation
// annotation.
func IsAnnotated(content string) bool {
	return strings.Contains(content, TruncationPrefix) ||
		strings.Contains(content, DegradedNotice)
}

// CallConfig controls one Client call.
type CallConfig struct {
	// Timeout bounds the call. Zero means no deadline beyond the caller's
	// context.
	Timeout time.Duration

	// AllowPartial lets a failed call return salvaged buffer content
	// (with a truncation annotation) instead of an error.
	AllowPartial bool

	// SalvageOnly configures a harvest pass: any terminal outcome with
	// enough buffered content is accepted, completion is not required.
	SalvageOnly bool
}

// Client is the generation client: it issues one cancellable engine call,
// owns the call's stream buffer exclusively, and classifies terminal
// outcomes into the error taxonomy.
type Client struct {
	engine Engine
	log    *logging.Logger
}

// NewClient creates a generation client for an engine.
func NewClient(engine Engine, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		engine: engine,
		log:    log.WithComponent("llm"),
	}
}

// Call issues one streaming call and returns the full content.
//
// onEvent, when non-nil, is invoked synchronously for every stream event in
// order, with SessionID stamped; demultiplexing runs inside it, so
// back-pressure is bounded by the inbound delta rate.
//
// Terminal failures carrying at least salvageThreshold buffered characters
// yield the buffered text plus a truncation annotation when AllowPartial or
// SalvageOnly is set. Cancellation with nothing to salvage fails with a
// TIMEOUT error; other unsalvageable terminal outcomes fail with the
// corresponding limit or upstream error.
//
// The stream buffer is exclusive to this call and discarded when Call
// returns, whatever the outcome.
func (c *Client) Call(ctx context.Context, sessionID string, req Request, cfg CallConfig, onEvent func(Event)) (string, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var buf strings.Builder
	emit := func(ev Event) {
		ev.SessionID = sessionID
		if ev.Type == EventContentDelta {
			buf.WriteString(ev.Delta)
			ev.TotalLen = buf.Len()
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}

	turn, err := c.engine.Stream(ctx, req, emit)

	buffered := buf.String()
	if turn != nil && len(turn.Content) > len(buffered) {
		buffered = turn.Content
	}

	if err != nil {
		if salvaged, ok := c.salvage(buffered, StopCancelled, cfg); ok {
			return salvaged, nil
		}
		if stderrors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", errors.Timeout("generation call timed out",
				errors.WithSessionID(sessionID), errors.WithCause(err))
		}
		return "", errors.Wrap(err, "engine call failed", errors.WithSessionID(sessionID))
	}

	switch turn.Reason {
	case StopSuccess:
		return buffered, nil

	case StopCancelled:
		if salvaged, ok := c.salvage(buffered, turn.Reason, cfg); ok {
			return salvaged, nil
		}
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.Timeout("generation call timed out with no salvageable output",
				errors.WithSessionID(sessionID))
		}
		return "", errors.Cancelled("generation call cancelled",
			errors.WithSessionID(sessionID))

	case StopTurnLimit:
		if salvaged, ok := c.salvage(buffered, turn.Reason, cfg); ok {
			return salvaged, nil
		}
		return "", errors.TurnLimit("engine stopped at its turn limit",
			errors.WithSessionID(sessionID))

	default: // StopError, StopOther
		if salvaged, ok := c.salvage(buffered, turn.Reason, cfg); ok {
			return salvaged, nil
		}
		detail := turn.Detail
		if detail == "" {
			detail = "engine reported a terminal failure"
		}
		return "", errors.Upstream(string(turn.Reason), detail,
			errors.WithSessionID(sessionID))
	}
}

// salvage returns annotated buffer content when the call configuration
// permits partial results and enough content accumulated.
func (c *Client) salvage(buffered string, reason StopReason, cfg CallConfig) (string, bool) {
	if !cfg.AllowPartial && !cfg.SalvageOnly {
		return "", false
	}
	if utf8.RuneCountInString(buffered) < salvageThreshold {
		return "", false
	}
	c.log.Warn("salvaging partial output", map[string]interface{}{
		"reason": string(reason),
		"length": len(buffered),
	})
	return Truncated(buffered, reason), true
}
