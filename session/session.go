// Package session orchestrates one multiplexed generation run end to end.
package session

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/vinayprograms/genmux/demux"
	"github.com/vinayprograms/genmux/errors"
	"github.com/vinayprograms/genmux/events"
	"github.com/vinayprograms/genmux/llm"
	"github.com/vinayprograms/genmux/logging"
	"github.com/vinayprograms/genmux/persist"
	"github.com/vinayprograms/genmux/policy"
	"github.com/vinayprograms/genmux/prompt"
	"github.com/vinayprograms/genmux/results"
	"github.com/vinayprograms/genmux/tasks"
)

// Runner executes generation runs against one engine. Runs share no mutable
// state; each Run builds its own buffer, demultiplexer and writer.
type Runner struct {
	engine llm.Engine
	bus    *events.Bus
	log    *logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBus attaches a progress event bus the caller drains.
func WithBus(bus *events.Bus) Option {
	return func(r *Runner) { r.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// NewRunner creates a runner for an engine.
func NewRunner(engine llm.Engine, opts ...Option) *Runner {
	r := &Runner{engine: engine}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Nop()
	}
	return r
}

// Run executes one generation run: build the multiplexed prompt, stream it
// through the retry ladder with live demultiplexing, recover leftovers with
// the fallback pass, and aggregate every declared task into one outcome.
//
// The returned outcome always covers every spec. When some tasks resolve,
// call failures demote to warnings and Run returns a partial outcome with a
// nil error; when none resolve, Run returns the failed outcome together
// with a GENERATION_FAILED error.
func (r *Runner) Run(ctx context.Context, specs []tasks.Spec, builder prompt.Builder, cfg Config) (*results.Outcome, error) {
	if err := tasks.Validate(specs); err != nil {
		return nil, errors.InvalidInput(err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if builder == nil {
		builder = prompt.NewTemplateBuilder(nil)
	}

	sessionID := uuid.NewString()
	log := r.log.WithSession(sessionID)
	log.Info("starting generation run", map[string]interface{}{
		"tasks": len(specs),
	})

	specByID := make(map[string]tasks.Spec, len(specs))
	for _, spec := range specs {
		specByID[spec.ID] = spec
	}

	writer, err := persist.NewWriter(persist.Config{
		PathFor: func(taskID string) string {
			return cfg.PathFor(specByID[taskID])
		},
		TitleFor: func(taskID string) string {
			if spec, ok := specByID[taskID]; ok && spec.DisplayName != "" {
				return spec.DisplayName
			}
			return taskID
		},
	}, log)
	if err != nil {
		return nil, err
	}

	d := demux.New(specs, writer, log)
	client := llm.NewClient(r.engine, log)

	promptText, systemText, err := builder.Build(specs)
	if err != nil {
		return nil, err
	}

	// bestBuffer holds the largest raw stream buffer seen across attempts;
	// the fallback pass runs over it after the ladder settles.
	var bestBuffer string

	run := func(ctx context.Context, attempt policy.Attempt) (string, error) {
		d.BeginAttempt(attempt.Degraded)
		var buf strings.Builder
		content, err := client.Call(ctx, sessionID, attempt.Request, attempt.Call, func(ev llm.Event) {
			r.publish(ev)
			if ev.Type == llm.EventContentDelta {
				buf.WriteString(ev.Delta)
				d.Scan(buf.String())
			}
		})
		if buf.Len() > len(bestBuffer) {
			bestBuffer = buf.String()
		}
		return content, err
	}

	ladder, err := policy.NewLadder(policy.Config{
		Timeout:             cfg.Timeout,
		MaxAttempts:         cfg.MaxAttempts,
		BaseRetryDelay:      cfg.BaseRetryDelay,
		AllowPartialResults: cfg.AllowPartialResults,
		AllowDegradation:    cfg.AllowDegradation,
	}, nil, run, log)
	if err != nil {
		return nil, err
	}

	_, ladderErr := ladder.Execute(ctx, llm.Request{
		Prompt:       promptText,
		SystemPrompt: systemText,
	})

	// Recover what the live scan missed, salvaged buffers included.
	d.Fallback(bestBuffer)

	resolved := make(map[string]results.Resolved)
	for _, spec := range specs {
		res, ok := d.Resolution(spec.ID)
		if !ok {
			continue
		}
		mode := results.ModeLive
		if res.Mode == demux.ModeFallback {
			mode = results.ModeFallback
		}
		path, _ := writer.Written(spec.ID)
		resolved[spec.ID] = results.Resolved{
			Content:  res.Content,
			Mode:     mode,
			Path:     path,
			Degraded: res.Degraded,
		}
	}

	warnings := d.Warnings()
	if ladderErr != nil && len(resolved) > 0 {
		warnings = append(warnings, "generation ended early: "+ladderErr.Error())
	}

	outcome := results.Aggregate(specs, resolved, warnings)
	log.Info("generation run complete", map[string]interface{}{
		"status":     string(outcome.Status),
		"resolved":   outcome.ResolvedCount(),
		"confidence": outcome.OverallConfidence,
	})

	if len(resolved) == 0 && ladderErr != nil {
		if errors.IsCode(ladderErr, errors.ErrCodeGenerationFailed) {
			return outcome, ladderErr
		}
		return outcome, errors.GenerationFailed(ladderErr, errors.WithSessionID(sessionID))
	}
	return outcome, nil
}

// publish forwards a stream event to the progress bus, when attached.
// Bus publishes never block; slow consumers drop events.
func (r *Runner) publish(ev llm.Event) {
	if r.bus == nil {
		return
	}

	out := events.Event{
		SessionID: ev.SessionID,
		Delta:     ev.Delta,
		TotalLen:  ev.TotalLen,
		Tool:      ev.ToolName,
		ToolID:    ev.ToolID,
		Phase:     ev.Phase,
	}
	switch ev.Type {
	case llm.EventThinkingStart:
		out.Type = events.ThinkingStart
	case llm.EventThinkingDelta:
		out.Type = events.ThinkingProgress
	case llm.EventToolUse:
		out.Type = events.ToolExecution
	case llm.EventContentDelta:
		out.Type = events.ContentUpdate
	case llm.EventStatus:
		out.Type = events.StatusUpdate
	default:
		return
	}
	r.bus.Publish(out)
}
