// Package persist durably writes resolved task content, at most once per
// task per session.
package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vinayprograms/genmux/errors"
	"github.com/vinayprograms/genmux/logging"
)

// Config configures a session writer. PathFor is required; it maps a task ID
// to the destination file path, whatever layout the caller uses.
type Config struct {
	// PathFor returns the destination path for a task's content file.
	PathFor func(taskID string) string

	// TitleFor returns the document title for a task. Defaults to the
	// task ID when nil.
	TitleFor func(taskID string) string

	// Now supplies header timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.PathFor == nil {
		return fmt.Errorf("path function is required")
	}
	return nil
}

// ApplyDefaults fills in optional fields.
func (c *Config) ApplyDefaults() {
	if c.TitleFor == nil {
		c.TitleFor = func(taskID string) string { return taskID }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Writer persists each task's content exactly once per session. The
// resolved-id gate is consulted before every write, so rescans and the
// fallback pass can hand the same task over any number of times without a
// second physical write.
type Writer struct {
	mu      sync.Mutex
	cfg     Config
	log     *logging.Logger
	written map[string]string // task ID -> path written
}

// NewWriter creates a session writer.
func NewWriter(cfg Config, log *logging.Logger) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if log == nil {
		log = logging.Nop()
	}
	return &Writer{
		cfg:     cfg,
		log:     log.WithComponent("persist"),
		written: make(map[string]string),
	}, nil
}

// Resolve writes a task's content to its destination file. The first call
// for a task wins; later calls are no-ops. Implements the demultiplexer's
// sink contract.
func (w *Writer) Resolve(taskID, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, done := w.written[taskID]; done {
		w.log.Debug("skipping duplicate write", map[string]interface{}{"task": taskID})
		return nil
	}

	path := w.cfg.PathFor(taskID)
	doc := Wrap(Meta{
		Title:     w.cfg.TitleFor(taskID),
		TaskName:  taskID,
		Generated: w.cfg.Now().UTC(),
	}, content)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Persistence(taskID, err)
	}
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return errors.Persistence(taskID, err)
	}

	w.written[taskID] = path
	w.log.Info("task persisted", map[string]interface{}{
		"task": taskID,
		"path": path,
	})
	return nil
}

// Written reports whether a task's content reached disk, and where.
func (w *Writer) Written(taskID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	path, ok := w.written[taskID]
	return path, ok
}

// Count returns the number of physical writes performed.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}
