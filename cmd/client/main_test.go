package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nocops/itsm-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeTicket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.InvokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Please summarize ticket TKT-12345. Find the user, the core problem, and any affected services.", req.Prompt)

		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"response":"Alice cannot reach the VPN."}`))
		case "/missing":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"model call: upstream unavailable"}`))
		}
	}))
	defer server.Close()

	summary, err := summarizeTicket(server.Client(), server.URL+"/ok", "TKT-12345")
	require.NoError(t, err)
	assert.Equal(t, "Alice cannot reach the VPN.", summary)

	_, err = summarizeTicket(server.Client(), server.URL+"/missing", "TKT-12345")
	assert.ErrorContains(t, err, "no response field")

	_, err = summarizeTicket(server.Client(), server.URL+"/fail", "TKT-12345")
	assert.EqualError(t, err, "server returned 500: model call: upstream unavailable")
}
