// Package orchestrator runs the ReAct loop: prompt the model, parse its turn,
// call the chosen tool, feed the observation back, until a final answer.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/nocops/itsm-agent/internal/clients"
	"github.com/nocops/itsm-agent/internal/config"
	"github.com/nocops/itsm-agent/internal/logger"
	"github.com/nocops/itsm-agent/internal/models"
	"github.com/nocops/itsm-agent/internal/tools"
)

// StoppedAnswer is returned when the iteration budget runs out
const StoppedAnswer = "Agent stopped due to iteration limit or time limit."

// Executor drives a model through tool calls until it produces a final answer.
// It keeps no per-run state and is safe for concurrent use.
type Executor struct {
	client        clients.ModelClient
	registry      *tools.Registry
	tmpl          *template.Template
	maxIterations int
	logger        *logger.Logger
}

// NewExecutor creates an executor with the configured prompt and iteration budget
func NewExecutor(client clients.ModelClient, registry *tools.Registry, cfg config.AgentConfig) (*Executor, error) {
	log := logger.GetLogger().WithComponent("executor")

	tmpl, err := parsePrompt(cfg.Prompt)
	if err != nil {
		return nil, err
	}
	if cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", cfg.MaxIterations)
	}

	log.Debug("Executor created with tools=%v max_iterations=%d", registry.Names(), cfg.MaxIterations)

	return &Executor{
		client:        client,
		registry:      registry,
		tmpl:          tmpl,
		maxIterations: cfg.MaxIterations,
		logger:        log,
	}, nil
}

// Invoke runs the agent to completion and returns the final answer
func (e *Executor) Invoke(ctx context.Context, input string) (string, error) {
	return e.run(ctx, input, false, func(Event) bool { return true })
}

// Stream runs the agent in the background. Final-answer fragments arrive as
// EventAnswer while the model is still generating. The channel closes after
// EventFinal, EventError or cancellation of ctx.
func (e *Executor) Stream(ctx context.Context, input string) <-chan Event {
	out := make(chan Event)

	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		if _, err := e.run(ctx, input, true, emit); err != nil && ctx.Err() == nil {
			emit(Event{Kind: EventError, Err: err})
		}
	}()

	return out
}

func (e *Executor) run(ctx context.Context, input string, streaming bool, emit func(Event) bool) (string, error) {
	e.logger.Info("Starting agent run, streaming=%v", streaming)

	var steps []step
	for i := 0; i < e.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Agent run cancelled at iteration %d", i)
			return "", err
		}

		prompt, err := renderPrompt(e.tmpl, promptData{
			Tools:      e.registry.Describe(),
			ToolNames:  strings.Join(e.registry.Names(), ", "),
			Input:      input,
			Scratchpad: scratchpad(steps),
		})
		if err != nil {
			return "", err
		}

		req := &clients.Request{
			Messages: []clients.Message{{Role: models.RoleUser, Content: prompt}},
			Stop:     []string{stopSequence},
		}

		var text string
		if streaming {
			text, err = e.generateStream(ctx, req, emit)
		} else {
			text, err = e.client.Complete(ctx, req)
		}
		if err != nil {
			e.logger.WithError(err).Error("Model call failed at iteration %d", i)
			return "", fmt.Errorf("model call: %w", err)
		}

		parsed := ParseReActOutput(text)
		if parsed.Thought != "" && !emit(Event{Kind: EventThought, Text: parsed.Thought}) {
			return "", ctx.Err()
		}

		if parsed.IsFinal {
			e.logger.Info("Agent finished after %d iterations", i+1)
			if !emit(Event{Kind: EventFinal, Text: parsed.FinalAnswer}) {
				return "", ctx.Err()
			}
			return parsed.FinalAnswer, nil
		}

		var observation string
		if parsed.Invalid != "" {
			e.logger.Debug("Unparseable model output at iteration %d: %q", i, text)
			observation = parsed.Invalid
		} else {
			e.logger.Debug("Calling tool %s with input %q", parsed.Action, parsed.ActionInput)
			if !emit(Event{Kind: EventAction, Tool: parsed.Action, Text: parsed.ActionInput}) {
				return "", ctx.Err()
			}
			observation = e.registry.Call(ctx, parsed.Action, parsed.ActionInput)
		}

		if !emit(Event{Kind: EventObservation, Tool: parsed.Action, Text: observation}) {
			return "", ctx.Err()
		}
		steps = append(steps, step{log: text, observation: observation})
	}

	e.logger.Warn("Agent hit the iteration limit of %d", e.maxIterations)
	if streaming && !emit(Event{Kind: EventAnswer, Text: StoppedAnswer}) {
		return "", ctx.Err()
	}
	if !emit(Event{Kind: EventFinal, Text: StoppedAnswer}) {
		return "", ctx.Err()
	}
	return StoppedAnswer, nil
}

// generateStream collects one model turn, releasing final-answer text as it arrives
func (e *Executor) generateStream(ctx context.Context, req *clients.Request, emit func(Event) bool) (string, error) {
	deltas, err := e.client.CompleteStream(ctx, req)
	if err != nil {
		return "", err
	}

	var watcher answerWatcher
	for delta := range deltas {
		if delta.Err != nil {
			return "", delta.Err
		}
		if fragment := watcher.feed(delta.Content); fragment != "" {
			if !emit(Event{Kind: EventAnswer, Text: fragment}) {
				return "", ctx.Err()
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return watcher.text(), nil
}
