// Package modelbridge adapts the agent to the two calls the HTTP layer needs:
// a blocking Invoke and a Stream of final-answer fragments.
package modelbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nocops/itsm-agent/internal/logger"
	"github.com/nocops/itsm-agent/internal/orchestrator"
)

// ErrEngineTimeout is returned when a call exceeds the configured budget
var ErrEngineTimeout = errors.New("engine timed out")

// Agent is the reasoning engine behind the bridge
type Agent interface {
	Invoke(ctx context.Context, input string) (string, error)
	Stream(ctx context.Context, input string) <-chan orchestrator.Event
}

// Fragment is one piece of the final answer. A Fragment with Err set is
// always the last one.
type Fragment struct {
	Text string
	Err  error
}

// ModelBridge applies the per-call timeout and keeps only final-answer output
type ModelBridge struct {
	agent   Agent
	timeout time.Duration
	logger  *logger.Logger
}

// NewModelBridge creates a new bridge. A non-positive timeout disables the limit.
func NewModelBridge(agent Agent, timeout time.Duration) *ModelBridge {
	log := logger.GetLogger().WithComponent("model_bridge")
	log.Info("Creating model bridge with timeout %s", timeout)

	return &ModelBridge{
		agent:   agent,
		timeout: timeout,
		logger:  log,
	}
}

func (b *ModelBridge) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *ModelBridge) timeoutError(callCtx, parent context.Context) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w after %s", ErrEngineTimeout, b.timeout)
	}
	return nil
}

// Invoke blocks until the agent produces its final answer
func (b *ModelBridge) Invoke(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := b.withTimeout(ctx)
	defer cancel()

	b.logger.Debug("Invoking agent with prompt of %d bytes", len(prompt))
	answer, err := b.agent.Invoke(callCtx, prompt)
	if err != nil {
		if terr := b.timeoutError(callCtx, ctx); terr != nil {
			err = terr
		}
		b.logger.WithError(err).Warn("Agent invocation failed")
		return "", err
	}

	b.logger.Debug("Agent invocation completed with %d bytes", len(answer))
	return answer, nil
}

// Stream returns final-answer fragments in order. Thoughts, actions and
// observations are dropped. The channel closes when the answer is complete,
// after an error fragment, or when ctx is cancelled.
func (b *ModelBridge) Stream(ctx context.Context, prompt string) <-chan Fragment {
	out := make(chan Fragment)

	go func() {
		defer close(out)

		callCtx, cancel := b.withTimeout(ctx)
		defer cancel()

		send := func(f Fragment) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		fragments := 0
		for ev := range b.agent.Stream(callCtx, prompt) {
			switch ev.Kind {
			case orchestrator.EventAnswer:
				if ev.Text == "" {
					continue
				}
				fragments++
				if !send(Fragment{Text: ev.Text}) {
					b.logger.Debug("Consumer went away after %d fragments", fragments)
					return
				}
			case orchestrator.EventError:
				b.logger.WithError(ev.Err).Warn("Agent stream failed after %d fragments", fragments)
				send(Fragment{Err: ev.Err})
				return
			case orchestrator.EventAction:
				b.logger.Debug("Agent calling tool %s", ev.Tool)
			}
		}

		if err := b.timeoutError(callCtx, ctx); err != nil {
			b.logger.WithError(err).Warn("Agent stream timed out after %d fragments", fragments)
			send(Fragment{Err: err})
			return
		}

		b.logger.Debug("Streaming completed: fragments=%d", fragments)
	}()

	return out
}
