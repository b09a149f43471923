package clients

import (
	"context"
	"fmt"
	"time"
)

// Message is one turn sent upstream
type Message struct {
	Role    string
	Content string
}

// Request is a completion request. Stop sequences end generation early.
type Request struct {
	Messages []Message
	Stop     []string
}

// Delta is one streamed fragment. A Delta with Err set is always the last one.
type Delta struct {
	Content string
	Err     error
}

// ModelClient defines the interface for model API clients
type ModelClient interface {
	// Complete sends a completion request and returns the generated text
	Complete(ctx context.Context, req *Request) (string, error)

	// CompleteStream sends a streaming completion request. The channel is
	// closed when generation ends or ctx is cancelled.
	CompleteStream(ctx context.Context, req *Request) (<-chan Delta, error)
}

// ModelClientConfig contains configuration for model clients
type ModelClientConfig struct {
	APIBase     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// APIError is a non-2xx reply from the model API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("model api: %d: %s", e.StatusCode, e.Message)
}
