package session

import (
	"path/filepath"
	"time"

	"github.com/vinayprograms/genmux/errors"
	"github.com/vinayprograms/genmux/tasks"
)

// Config bounds one generation run.
type Config struct {
	// Timeout bounds each individual call attempt.
	Timeout time.Duration

	// MaxAttempts caps the retry ladder's primary attempts.
	MaxAttempts int

	// BaseRetryDelay scales the linear backoff between attempts.
	BaseRetryDelay time.Duration

	// AllowPartialResults lets failed calls salvage buffered content.
	AllowPartialResults bool

	// AllowDegradation enables the one-shot degraded attempt on the first
	// limit-class failure.
	AllowDegradation bool

	// OutputDir is where task files are written when PathFor is nil.
	OutputDir string

	// PathFor overrides the destination path per task.
	PathFor func(spec tasks.Spec) string
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Timeout < 0 || c.BaseRetryDelay < 0 {
		return errors.InvalidInput("durations must not be negative")
	}
	if c.MaxAttempts < 0 {
		return errors.InvalidInput("max attempts must not be negative")
	}
	if c.OutputDir == "" && c.PathFor == nil {
		return errors.InvalidInput("either output dir or a path function is required")
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
	if c.PathFor == nil {
		dir := c.OutputDir
		c.PathFor = func(spec tasks.Spec) string {
			return filepath.Join(dir, spec.Key()+".md")
		}
	}
}
