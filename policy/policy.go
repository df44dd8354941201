// Package policy bounds generation retries with an explicit action table
// and a small ladder interpreter.
package policy

import (
	"time"

	"github.com/vinayprograms/genmux/errors"
)

// FailureClass groups call failures by what the ladder can do about them.
type FailureClass string

const (
	// ClassLimit covers timeouts, turn limits and aborts. A degraded
	// attempt with a smaller prompt may still fit inside the limit.
	ClassLimit FailureClass = "limit"

	// ClassTransient covers rate limits and upstream flakiness. A plain
	// retry with backoff may succeed.
	ClassTransient FailureClass = "transient"

	// ClassFatal covers failures no further attempt can fix.
	ClassFatal FailureClass = "fatal"
)

// Classify maps an error onto its failure class via the error taxonomy.
func Classify(err error) FailureClass {
	switch errors.CategoryOf(err) {
	case errors.CategoryLimit:
		return ClassLimit
	case errors.CategoryTransient:
		return ClassTransient
	default:
		return ClassFatal
	}
}

// Action is what the ladder does after a classified failure.
type Action string

const (
	ActionRetry   Action = "retry"
	ActionDegrade Action = "degrade"
	ActionSalvage Action = "salvage"
	ActionFail    Action = "fail"
)

// Table maps failure classes to ladder actions. Making the policy a value
// keeps the interpreter free of per-class branching and lets tests swap
// behavior without rebuilding the ladder.
type Table map[FailureClass]Action

// DefaultTable returns the standard policy: degrade on limits, retry on
// transient failures, fail fast on everything else.
func DefaultTable() Table {
	return Table{
		ClassLimit:     ActionDegrade,
		ClassTransient: ActionRetry,
		ClassFatal:     ActionFail,
	}
}

// ActionFor returns the action for an error's class, defaulting to fail.
func (t Table) ActionFor(err error) Action {
	if action, ok := t[Classify(err)]; ok {
		return action
	}
	return ActionFail
}

// Config bounds one generation run.
type Config struct {
	// Timeout bounds each individual call attempt.
	Timeout time.Duration

	// MaxAttempts caps the number of primary attempts. Degraded and
	// salvage-only attempts ride inside an attempt, they do not consume
	// extra slots.
	MaxAttempts int

	// BaseRetryDelay scales the linear backoff between attempts.
	BaseRetryDelay time.Duration

	// AllowPartialResults lets failed calls return salvaged buffer content.
	AllowPartialResults bool

	// AllowDegradation enables the one-shot degraded attempt on the first
	// limit-class failure.
	AllowDegradation bool
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.InvalidInput("max attempts must be at least 1")
	}
	if c.Timeout < 0 || c.BaseRetryDelay < 0 {
		return errors.InvalidInput("durations must not be negative")
	}
	return nil
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseRetryDelay == 0 {
		c.BaseRetryDelay = 2 * time.Second
	}
}
