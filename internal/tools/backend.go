package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nocops/itsm-agent/internal/logger"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps how much of a backend reply is read
const maxBodyBytes = 1 << 20

// BackendError describes a failed call to a lookup service
type BackendError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// BackendOptions is the network contract shared by every backend
type BackendOptions struct {
	Timeout       time.Duration
	MaxRetries    int
	RatePerSec    float64
	Burst         int
	RetryInterval time.Duration
	HTTPClient    *http.Client
}

type backend struct {
	name          string
	client        *http.Client
	limiter       *rate.Limiter
	maxRetries    int
	retryInterval time.Duration
	logger        *logger.Logger
}

func newBackend(name string, opts BackendOptions) *backend {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	interval := opts.RetryInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	return &backend{
		name:          name,
		client:        client,
		limiter:       rate.NewLimiter(limit, burst),
		maxRetries:    max(opts.MaxRetries, 0),
		retryInterval: interval,
		logger:        logger.GetLogger().WithComponent("tools." + name),
	}
}

// do sends body as JSON (when non-nil) and decodes the reply into out.
// Network errors, 429 and 5xx are retried; other failures are returned at once.
func (b *backend) do(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return &BackendError{Backend: b.name, Err: fmt.Errorf("marshal request: %w", err)}
		}
	}

	attempt := 0
	operation := func() error {
		attempt++
		if err := b.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&BackendError{Backend: b.name, Err: err})
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(&BackendError{Backend: b.name, Err: err})
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := b.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&BackendError{Backend: b.name, Err: ctx.Err()})
			}
			b.logger.Warn("attempt %d to %s failed: %v", attempt, url, err)
			return &BackendError{Backend: b.name, Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return &BackendError{Backend: b.name, Err: fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			b.logger.Warn("attempt %d to %s returned %d", attempt, url, resp.StatusCode)
			return &BackendError{Backend: b.name, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", bytes.TrimSpace(data))}
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(&BackendError{Backend: b.name, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", bytes.TrimSpace(data))})
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(&BackendError{Backend: b.name, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)})
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = b.retryInterval
	expo.MaxInterval = 10 * b.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(b.maxRetries)), ctx)

	return backoff.Retry(operation, policy)
}
