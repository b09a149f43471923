package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nocops/itsm-agent/internal/models"
)

var doneRecord = []byte("data: [DONE]\n\n")

// sseWriter frames records as "data: <payload>\n\n" and flushes each one
type sseWriter struct {
	w gin.ResponseWriter
}

func (s *sseWriter) write(payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

func (s *sseWriter) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(payload)
}

func (s *sseWriter) done() error {
	if _, err := s.w.Write(doneRecord); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

// streamCompletion relays final-answer fragments as chat.completion.chunk
// records. A failure mid-stream produces one error record; [DONE] always ends
// the stream unless the client has gone away.
func (s *Server) streamCompletion(c *gin.Context, model, prompt string) {
	ctx := c.Request.Context()
	requestID := RequestID(ctx)

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	w := &sseWriter{w: c.Writer}
	fragments := s.engine.Stream(ctx, prompt)
	chunks := 0

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Client disconnected from stream %s after %d chunks", requestID, chunks)
			agentRequestsTotal.WithLabelValues("chat_completions_stream", outcomeCanceled).Inc()
			return

		case frag, ok := <-fragments:
			if !ok {
				s.logger.Debug("Stream %s completed with %d chunks", requestID, chunks)
				agentRequestsTotal.WithLabelValues("chat_completions_stream", outcomeSuccess).Inc()
				if err := w.done(); err != nil {
					s.logger.WithError(err).Warn("Failed to finish stream %s", requestID)
				}
				return
			}

			if frag.Err != nil {
				s.logger.WithError(frag.Err).Error("Stream %s aborted after %d chunks", requestID, chunks)
				agentRequestsTotal.WithLabelValues("chat_completions_stream", outcomeError).Inc()
				record := models.StreamError{Error: models.StreamErrorDetail{
					Message: frag.Err.Error(),
					Type:    "server_error",
				}}
				if err := w.writeJSON(record); err == nil {
					_ = w.done()
				}
				return
			}

			chunk := models.ChatCompletionChunk{
				ID:      id,
				Object:  models.ObjectChatCompletionChunk,
				Created: created,
				Model:   model,
				Choices: []models.ChunkChoice{{Index: 0, Delta: models.ChunkDelta{Content: frag.Text}}},
			}
			if err := w.writeJSON(chunk); err != nil {
				s.logger.WithError(err).Warn("Failed to write chunk to stream %s", requestID)
				agentRequestsTotal.WithLabelValues("chat_completions_stream", outcomeCanceled).Inc()
				return
			}
			chunks++
			streamChunksTotal.Inc()
		}
	}
}
