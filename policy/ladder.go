package policy

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/vinayprograms/genmux/errors"
	"github.com/vinayprograms/genmux/llm"
	"github.com/vinayprograms/genmux/logging"
)

const (
	// acceptThreshold is the minimum content length for an attempt's result
	// to count as success.
	acceptThreshold = 100

	// degradedTimeoutFactor scales the timeout for the degraded attempt.
	degradedTimeoutFactor = 2

	// degradedTimeoutCap bounds the scaled timeout.
	degradedTimeoutCap = 15 * time.Minute
)

// Attempt describes one call the ladder asks its runner to make.
type Attempt struct {
	// Number is the 1-based primary attempt counter.
	Number int

	Request llm.Request
	Call    llm.CallConfig

	// Degraded marks the one-shot simplified attempt.
	Degraded bool

	// SalvageOnly marks the harvest pass after a failed degraded attempt.
	SalvageOnly bool
}

// Runner executes one attempt and returns the content it produced. The
// session layer supplies it, wrapping the generation client plus per-attempt
// demultiplexer reset; tests supply fakes.
type Runner func(ctx context.Context, attempt Attempt) (string, error)

// Ladder interprets the policy table over a bounded sequence of attempts.
type Ladder struct {
	cfg   Config
	table Table
	run   Runner
	log   *logging.Logger
}

// NewLadder creates a ladder. Zero-valued config fields get defaults before
// validation, so only explicitly negative settings are rejected. A nil table
// gets the default policy.
func NewLadder(cfg Config, table Table, run Runner, log *logging.Logger) (*Ladder, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if table == nil {
		table = DefaultTable()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Ladder{
		cfg:   cfg,
		table: table,
		run:   run,
		log:   log.WithComponent("policy"),
	}, nil
}

// Execute runs the ladder for a request.
//
// Each primary attempt issues the caller's request. On a limit-class failure
// with degradation allowed, the first occurrence triggers one degraded
// attempt inline: compressed prompt, turn limit removed, timeout scaled by a
// fixed capped factor. A degraded failure is followed by a salvage-only
// attempt against the original prompt. Accepted degraded content carries a
// visible annotation; confidence scoring penalizes it downstream.
//
// Between primary attempts the ladder backs off linearly. Exhaustion fails
// with a GENERATION_FAILED error wrapping the last failure.
func (l *Ladder) Execute(ctx context.Context, req llm.Request) (string, error) {
	var lastErr error
	degradedUsed := false

	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := l.backoff(ctx, attempt-1); err != nil {
				return "", errors.GenerationFailed(lastErr)
			}
		}

		l.log.Info("issuing attempt", map[string]interface{}{"attempt": attempt})
		content, err := l.run(ctx, Attempt{
			Number:  attempt,
			Request: req,
			Call: llm.CallConfig{
				Timeout:      l.cfg.Timeout,
				AllowPartial: l.cfg.AllowPartialResults,
			},
		})
		if err == nil {
			if accepted(content) {
				return content, nil
			}
			lastErr = errors.New(errors.ErrCodeGenerationFailed,
				"attempt produced too little content",
				errors.WithCategory(errors.CategoryTransient))
			continue
		}
		lastErr = err

		switch l.table.ActionFor(err) {
		case ActionDegrade:
			if !l.cfg.AllowDegradation || degradedUsed {
				continue
			}
			degradedUsed = true

			content, err := l.degradedAttempt(ctx, attempt, req)
			if err == nil {
				return content, nil
			}
			lastErr = err

			content, err = l.salvageAttempt(ctx, attempt, req)
			if err == nil {
				return content, nil
			}
			lastErr = err

		case ActionRetry:
			continue

		case ActionSalvage:
			content, err := l.salvageAttempt(ctx, attempt, req)
			if err == nil {
				return content, nil
			}
			lastErr = err

		default: // ActionFail
			l.log.Error("unrecoverable failure", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return "", errors.GenerationFailed(err)
		}
	}

	return "", errors.GenerationFailed(lastErr)
}

// degradedAttempt issues the one-shot simplified call. The turn limit is
// removed and the timeout relaxed so a smaller prompt can run to completion.
func (l *Ladder) degradedAttempt(ctx context.Context, number int, req llm.Request) (string, error) {
	degradedReq := req
	degradedReq.Prompt = Compress(req.Prompt)
	degradedReq.MaxTurns = -1

	timeout := l.cfg.Timeout * degradedTimeoutFactor
	if timeout > degradedTimeoutCap {
		timeout = degradedTimeoutCap
	}

	l.log.Warn("degrading request", map[string]interface{}{
		"attempt":    number,
		"timeout_ms": timeout.Milliseconds(),
	})
	content, err := l.run(ctx, Attempt{
		Number:   number,
		Request:  degradedReq,
		Call:     llm.CallConfig{Timeout: timeout, AllowPartial: true},
		Degraded: true,
	})
	if err != nil {
		return "", err
	}
	if !accepted(content) {
		return "", errors.New(errors.ErrCodeGenerationFailed,
			"degraded attempt produced too little content",
			errors.WithCategory(errors.CategoryTransient))
	}
	return llm.Degraded(content), nil
}

// salvageAttempt harvests whatever buffered content the original prompt can
// still produce, without requiring completion.
func (l *Ladder) salvageAttempt(ctx context.Context, number int, req llm.Request) (string, error) {
	l.log.Warn("salvage-only attempt", map[string]interface{}{"attempt": number})
	content, err := l.run(ctx, Attempt{
		Number:      number,
		Request:     req,
		Call:        llm.CallConfig{Timeout: l.cfg.Timeout, SalvageOnly: true},
		SalvageOnly: true,
	})
	if err != nil {
		return "", err
	}
	if !accepted(content) {
		return "", errors.New(errors.ErrCodeGenerationFailed,
			"salvage attempt produced too little content",
			errors.WithCategory(errors.CategoryTransient))
	}
	return content, nil
}

// backoff waits baseRetryDelay times the completed attempt count.
func (l *Ladder) backoff(ctx context.Context, completed int) error {
	delay := l.cfg.BaseRetryDelay * time.Duration(completed)
	l.log.Debug("backing off", map[string]interface{}{"delay_ms": delay.Milliseconds()})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func accepted(content string) bool {
	return utf8.RuneCountInString(content) >= acceptThreshold
}
