package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nocops/itsm-agent/internal/config"
	"github.com/nocops/itsm-agent/internal/modelbridge"
	"github.com/nocops/itsm-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	invoke    func(ctx context.Context, prompt string) (string, error)
	fragments []modelbridge.Fragment

	mu      sync.Mutex
	prompts []string
}

func (f *fakeEngine) record(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
}

func (f *fakeEngine) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeEngine) Invoke(ctx context.Context, prompt string) (string, error) {
	f.record(prompt)
	if f.invoke != nil {
		return f.invoke(ctx, prompt)
	}
	return "", nil
}

func (f *fakeEngine) Stream(ctx context.Context, prompt string) <-chan modelbridge.Fragment {
	f.record(prompt)
	ch := make(chan modelbridge.Fragment)
	go func() {
		defer close(ch)
		for _, frag := range f.fragments {
			select {
			case ch <- frag:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func newTestRouter(t *testing.T, engine Engine, auth config.AuthConfig, opts ...Option) *gin.Engine {
	t.Helper()
	gate, err := NewAuthGate(auth)
	require.NoError(t, err)
	return New(engine, gate, opts...).Router()
}

func disabledAuth() config.AuthConfig {
	return config.AuthConfig{Mode: config.AuthDisabled}
}

func doRequest(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &fakeEngine{}, disabledAuth())

	w := doRequest(r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"AIOps Agent is running."}`, w.Body.String())
}

func TestInvoke(t *testing.T) {
	engine := &fakeEngine{invoke: func(ctx context.Context, prompt string) (string, error) {
		switch prompt {
		case "fail":
			return "", errors.New("model call: upstream unavailable")
		case "":
			return "empty prompt", nil
		}
		return "Ticket TKT-1: VPN outage for user Alice.", nil
	}}
	r := newTestRouter(t, engine, disabledAuth())

	testCases := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			body:       `{"prompt":"Summarize ticket TKT-1"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"response": "Ticket TKT-1: VPN outage for user Alice."}`,
		},
		{
			name:       "empty prompt is forwarded",
			body:       `{"prompt":""}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"response":"empty prompt"}`,
		},
		{
			name:       "engine failure",
			body:       `{"prompt":"fail"}`,
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"model call: upstream unavailable"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPost, "/invoke", tc.body)
			assert.Equal(t, tc.wantStatus, w.Code)
			assert.JSONEq(t, tc.wantBody, w.Body.String())
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		w := doRequest(r, http.MethodPost, "/invoke", `{"prompt":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"error"`)
	})

	assert.Equal(t, []string{"Summarize ticket TKT-1", "", "fail"}, engine.Prompts())
}

func TestChatCompletions(t *testing.T) {
	engine := &fakeEngine{invoke: func(ctx context.Context, prompt string) (string, error) {
		return "answer to " + prompt, nil
	}}
	r := newTestRouter(t, engine, disabledAuth())

	body := `{
		"model": "gpt-4",
		"temperature": 0.2,
		"messages": [
			{"role": "system", "content": "ignored"},
			{"role": "user", "content": "Please summarize ticket TKT-1"}
		]
	}`
	w := doRequest(r, http.MethodPost, "/v1/chat/completions", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "gpt-4", resp.Model)
	assert.NotZero(t, resp.Created)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, 0, resp.Choices[0].Index)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "answer to Please summarize ticket TKT-1", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, models.Usage{}, resp.Usage)

	assert.Equal(t, []string{"Please summarize ticket TKT-1"}, engine.Prompts())
}

func TestChatCompletionsValidation(t *testing.T) {
	engine := &fakeEngine{}
	r := newTestRouter(t, engine, disabledAuth())

	for _, body := range []string{
		`{"model":"gpt-4","messages":[]}`,
		`{"model":"gpt-4","messages":[],"stream":true}`,
		`{"messages":null}`,
		`{"messages":[],"stream":"yes"}`,
		`{"messages":[],"temperature":"hot","model":7}`,
	} {
		w := doRequest(r, http.MethodPost, "/v1/chat/completions", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"No messages provided."}`, w.Body.String())
	}

	w := doRequest(r, http.MethodPost, "/v1/chat/completions", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, engine.Prompts(), "engine must not be called for invalid requests")
}

func TestChatCompletionsEngineError(t *testing.T) {
	engine := &fakeEngine{invoke: func(ctx context.Context, prompt string) (string, error) {
		return "", modelbridge.ErrEngineTimeout
	}}
	r := newTestRouter(t, engine, disabledAuth())

	w := doRequest(r, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"x"}]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"engine timed out"}`, w.Body.String())
}

func TestModels(t *testing.T) {
	r := newTestRouter(t, &fakeEngine{}, disabledAuth(), WithModelAlias("noc-agent"))

	w := doRequest(r, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list models.ModelList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "noc-agent", list.Data[0].ID)
	assert.Equal(t, "model", list.Data[0].Object)
}

func TestMCPMount(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	r := newTestRouter(t, &fakeEngine{}, config.AuthConfig{Mode: config.AuthStatic, Tokens: []string{"sk-1"}}, WithMCP(mcp))

	w := doRequest(r, http.MethodPost, "/mcp", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(r, http.MethodPost, "/mcp", `{}`, "Authorization", "Bearer sk-1")
	assert.Equal(t, http.StatusAccepted, w.Code)

	plain := newTestRouter(t, &fakeEngine{}, disabledAuth())
	w = doRequest(plain, http.MethodPost, "/mcp", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMiddleware(t *testing.T) {
	r := newTestRouter(t, &fakeEngine{}, disabledAuth())
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	t.Run("request id generated", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/", "")
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("request id propagated", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/", "", "X-Request-ID", "req-42")
		assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	})

	t.Run("panic recovered", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/panic", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	})

	t.Run("metrics exposed", func(t *testing.T) {
		doRequest(r, http.MethodPost, "/invoke", `{"prompt":"x"}`)
		w := doRequest(r, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "http_requests_total")
		assert.Contains(t, body, `agent_requests_total{endpoint="invoke",outcome="success"}`)
		assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("http_request_duration_seconds")))
	})
}
