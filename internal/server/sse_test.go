package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nocops/itsm-agent/internal/modelbridge"
	"github.com/nocops/itsm-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const streamBody = `{"model":"itsm-agent","stream":true,"messages":[{"role":"user","content":"Please summarize ticket TKT-1"}]}`

// splitRecords returns the payload of every "data: " record in order
func splitRecords(t *testing.T, body string) []string {
	t.Helper()
	require.True(t, strings.HasSuffix(body, "\n\n"), "stream must end with a blank line")

	var payloads []string
	for _, record := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
		require.True(t, strings.HasPrefix(record, "data: "), "record %q", record)
		payloads = append(payloads, strings.TrimPrefix(record, "data: "))
	}
	return payloads
}

func TestStreamFraming(t *testing.T) {
	engine := &fakeEngine{fragments: []modelbridge.Fragment{{Text: "A"}, {Text: "B"}, {Text: "C"}}}
	r := newTestRouter(t, engine, disabledAuth())

	w := doRequest(r, http.MethodPost, "/v1/chat/completions", streamBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))

	payloads := splitRecords(t, w.Body.String())
	require.Len(t, payloads, 4)
	assert.Equal(t, "[DONE]", payloads[3])

	var contents []string
	var first models.ChatCompletionChunk
	for i, payload := range payloads[:3] {
		assert.Contains(t, payload, `"finish_reason":null`)

		var chunk models.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(payload), &chunk))
		if i == 0 {
			first = chunk
		}
		assert.Equal(t, first.ID, chunk.ID, "id is fixed per stream")
		assert.Equal(t, first.Created, chunk.Created, "created is fixed per stream")
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		assert.Equal(t, "itsm-agent", chunk.Model)
		require.Len(t, chunk.Choices, 1)
		assert.Equal(t, 0, chunk.Choices[0].Index)
		contents = append(contents, chunk.Choices[0].Delta.Content)
	}
	assert.True(t, strings.HasPrefix(first.ID, "chatcmpl-"))
	assert.Equal(t, []string{"A", "B", "C"}, contents)

	assert.Equal(t, []string{"Please summarize ticket TKT-1"}, engine.Prompts())
}

func TestStreamEmpty(t *testing.T) {
	r := newTestRouter(t, &fakeEngine{}, disabledAuth())

	w := doRequest(r, http.MethodPost, "/v1/chat/completions", streamBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data: [DONE]\n\n", w.Body.String())
}

func TestStreamError(t *testing.T) {
	engine := &fakeEngine{fragments: []modelbridge.Fragment{
		{Text: "partial"},
		{Err: errors.New("model call: connection reset")},
	}}
	r := newTestRouter(t, engine, disabledAuth())

	w := doRequest(r, http.MethodPost, "/v1/chat/completions", streamBody)
	require.Equal(t, http.StatusOK, w.Code)

	payloads := splitRecords(t, w.Body.String())
	require.Len(t, payloads, 3)
	assert.Contains(t, payloads[0], `"content":"partial"`)
	assert.JSONEq(t, `{"error":{"message":"model call: connection reset","type":"server_error"}}`, payloads[1])
	assert.Equal(t, "[DONE]", payloads[2])
}

// blockingEngine sends one fragment then waits for the request to go away
type blockingEngine struct {
	fakeEngine
	stopped chan struct{}
}

func (b *blockingEngine) Stream(ctx context.Context, prompt string) <-chan modelbridge.Fragment {
	ch := make(chan modelbridge.Fragment)
	go func() {
		defer close(b.stopped)
		defer close(ch)
		select {
		case ch <- modelbridge.Fragment{Text: "first"}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return ch
}

func TestStreamClientDisconnect(t *testing.T) {
	engine := &blockingEngine{stopped: make(chan struct{})}
	r := newTestRouter(t, engine, disabledAuth())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(streamBody)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool {
		select {
		case <-engine.stopped:
			return true
		default:
		}
		cancel()
		return false
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}
	assert.NotContains(t, w.Body.String(), "[DONE]")
}
