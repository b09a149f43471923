package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() BackendOptions {
	return BackendOptions{
		Timeout:       2 * time.Second,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	}
}

func TestBackendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	b := newBackend("test", testOptions())
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, b.do(context.Background(), http.MethodGet, server.URL, nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBackendGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	b := newBackend("test", testOptions())
	err := b.do(context.Background(), http.MethodGet, server.URL, nil, nil)

	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, http.StatusTooManyRequests, backendErr.StatusCode)
	assert.Equal(t, "test", backendErr.Backend)
	assert.Contains(t, err.Error(), "slow down")
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestBackendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	b := newBackend("test", testOptions())
	err := b.do(context.Background(), http.MethodGet, server.URL, nil, nil)

	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, http.StatusNotFound, backendErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBackendDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	b := newBackend("test", testOptions())
	var out map[string]any
	err := b.do(context.Background(), http.MethodGet, server.URL, nil, &out)
	assert.ErrorContains(t, err, "decode response")
}

func TestBackendSendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	b := newBackend("test", testOptions())
	require.NoError(t, b.do(context.Background(), http.MethodPost, server.URL, map[string]string{"a": "b"}, nil))
}

func TestBackendHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	opts := testOptions()
	opts.MaxRetries = 100
	opts.RetryInterval = 50 * time.Millisecond
	b := newBackend("test", opts)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.do(ctx, http.MethodGet, server.URL, nil, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBackendRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	opts := testOptions()
	opts.RatePerSec = 20
	opts.Burst = 1
	b := newBackend("test", opts)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.do(context.Background(), http.MethodGet, server.URL, nil, nil))
	}
	// burst of one then 50ms per token
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
