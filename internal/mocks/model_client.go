package mocks

import (
	"context"
	"sync"

	"github.com/nocops/itsm-agent/internal/clients"
)

// MockModelClient implements clients.ModelClient for testing
type MockModelClient struct {
	CompleteFunc       func(ctx context.Context, req *clients.Request) (string, error)
	CompleteStreamFunc func(ctx context.Context, req *clients.Request) (<-chan clients.Delta, error)

	mu       sync.Mutex
	requests []*clients.Request
}

func (m *MockModelClient) record(req *clients.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}

// Requests returns every request seen so far
func (m *MockModelClient) Requests() []*clients.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*clients.Request(nil), m.requests...)
}

func (m *MockModelClient) Complete(ctx context.Context, req *clients.Request) (string, error) {
	m.record(req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

func (m *MockModelClient) CompleteStream(ctx context.Context, req *clients.Request) (<-chan clients.Delta, error) {
	m.record(req)
	if m.CompleteStreamFunc != nil {
		return m.CompleteStreamFunc(ctx, req)
	}
	ch := make(chan clients.Delta)
	close(ch)
	return ch, nil
}

// ScriptedClient returns replies in order, one per call. Streaming splits each
// reply into chunks of the given size. Calls past the script repeat the last reply.
func ScriptedClient(chunkSize int, replies ...string) *MockModelClient {
	var mu sync.Mutex
	n := 0
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		reply := replies[min(n, len(replies)-1)]
		n++
		return reply
	}

	return &MockModelClient{
		CompleteFunc: func(ctx context.Context, req *clients.Request) (string, error) {
			return next(), nil
		},
		CompleteStreamFunc: func(ctx context.Context, req *clients.Request) (<-chan clients.Delta, error) {
			return StreamChunks(ctx, next(), chunkSize), nil
		},
	}
}

// StreamChunks delivers text as deltas of at most size bytes
func StreamChunks(ctx context.Context, text string, size int) <-chan clients.Delta {
	if size <= 0 {
		size = len(text)
	}
	ch := make(chan clients.Delta)
	go func() {
		defer close(ch)
		for len(text) > 0 {
			n := min(size, len(text))
			select {
			case ch <- clients.Delta{Content: text[:n]}:
			case <-ctx.Done():
				return
			}
			text = text[n:]
		}
	}()
	return ch
}
