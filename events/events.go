package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors.
var (
	ErrClosed = errors.New("event bus closed")
)

// Type identifies a progress event.
type Type string

const (
	// ThinkingStart fires when the engine begins a reasoning phase.
	ThinkingStart Type = "thinking_start"

	// ThinkingProgress carries an incremental reasoning delta.
	ThinkingProgress Type = "thinking_progress"

	// ToolExecution fires when the engine invokes a tool.
	ToolExecution Type = "tool_execution"

	// ContentUpdate carries an incremental output delta.
	ContentUpdate Type = "content_update"

	// StatusUpdate reports a phase change (generating, retrying, degraded,
	// salvaging, extracting, done).
	StatusUpdate Type = "status_update"
)

// Event is one progress notification from a generation run.
type Event struct {
	// Type identifies the event.
	Type Type

	// SessionID is the generation session the event belongs to.
	SessionID string

	// Delta is the incremental text for ThinkingProgress and ContentUpdate.
	Delta string

	// TotalLen is the cumulative buffer length after applying Delta.
	TotalLen int

	// Tool and ToolID identify the invocation for ToolExecution events.
	Tool   string
	ToolID string

	// Phase is the new phase for StatusUpdate events.
	Phase string

	// Time is when the event was published.
	Time time.Time
}

// Config holds bus configuration.
type Config struct {
	// BufferSize for subscriber channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// Bus fans progress events out to subscribers.
type Bus struct {
	config Config

	mu     sync.RWMutex
	subs   []*Subscription
	closed atomic.Bool
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	ch      chan Event
	closed  atomic.Bool
	dropped atomic.Uint64
	bus     *Bus
}

// NewBus creates a new in-process event bus.
func NewBus(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &Bus{config: cfg}
}

// Publish delivers an event to all subscribers without blocking.
// Subscribers whose buffers are full miss the event.
func (b *Bus) Publish(ev Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe creates a new subscription.
func (b *Bus) Subscribe() (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &Subscription{
		ch:  make(chan Event, b.config.BufferSize),
		bus: b,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub, nil
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
	return nil
}

// Events returns the channel for incoming events.
// The channel is closed when the subscription or the bus ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events this subscriber missed due to back-pressure.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Unsubscribe cancels the subscription.
func (s *Subscription) Unsubscribe() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.bus.mu.Lock()
	for i, sub := range s.bus.subs {
		if sub == s {
			s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
			break
		}
	}
	s.bus.mu.Unlock()

	close(s.ch)
	return nil
}
