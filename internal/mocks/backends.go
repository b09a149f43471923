package mocks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
)

var ticketIDRe = regexp.MustCompile(`\b[A-Z]+-\d+\b`)

// StardustTicket is the canned record served for every ticket id
func StardustTicket(ticketID string) map[string]string {
	return map[string]string{
		"ticket_id":      ticketID,
		"user":           "Alice",
		"affected_asset": "Laptop-12345",
		"service":        "Corporate VPN",
		"summary":        "User reports inability to connect to VPN.",
	}
}

// FinalAnswer is what the fake model concludes once it has seen an observation
func FinalAnswer(ticketID string) string {
	return fmt.Sprintf("Ticket %s was raised by Alice. The core problem: User reports inability to connect to VPN. "+
		"Affected services: Corporate VPN on Laptop-12345.", ticketID)
}

// NewBackendRouter serves a scripted ReAct model at /v1/chat/completions and
// stand-ins for the RAG server (/get_suggestion), Elasticsearch
// (/esdb/:index/_search) and Stardust (/v1/tickets/:id).
func NewBackendRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/v1/chat/completions", handleChatCompletion)

	r.POST("/get_suggestion", func(c *gin.Context) {
		var req struct {
			TicketID string `json:"ticket_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"suggestion": fmt.Sprintf("For ticket %s: KB00123: Reset user password, KB00456: Troubleshoot VPN connection", req.TicketID),
		})
	})

	r.POST("/esdb/:index/_search", func(c *gin.Context) {
		var req struct {
			Query struct {
				Match map[string]string `json:"match"`
			} `json:"query"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ticketID := req.Query.Match["ticket_id"]
		c.JSON(http.StatusOK, gin.H{
			"hits": gin.H{
				"total": gin.H{"value": 1},
				"hits": []gin.H{{
					"_index": c.Param("index"),
					"_source": gin.H{
						"ticket_id": ticketID,
						"host":      "web-prod-03",
						"level":     "error",
						"message":   "VPN tunnel negotiation failed",
					},
				}},
			},
		})
	})

	r.GET("/v1/tickets/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, StardustTicket(c.Param("id")))
	})

	return r
}

// scriptedReply looks up the ticket on the first turn and answers once an
// observation is in the prompt
func scriptedReply(prompt string) string {
	question := prompt
	if idx := strings.LastIndex(prompt, "Question: "); idx >= 0 {
		question = prompt[idx:]
	}
	ticketID := ticketIDRe.FindString(question)
	if ticketID == "" {
		return " The request does not name a ticket.\nFinal Answer: Please provide a ticket id such as TKT-12345."
	}
	if strings.Contains(question, "\nObservation: ") {
		return " I now know the final answer\nFinal Answer: " + FinalAnswer(ticketID)
	}
	return fmt.Sprintf(" I should look up the ticket details.\nAction: query_stardust\nAction Input: %s", ticketID)
}

func handleChatCompletion(c *gin.Context) {
	var req openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "messages is required"}})
		return
	}

	reply := scriptedReply(req.Messages[len(req.Messages)-1].Content)
	created := time.Now().Unix()

	if !req.Stream {
		c.JSON(http.StatusOK, openai.ChatCompletionResponse{
			ID:      "chatcmpl-mock",
			Object:  "chat.completion",
			Created: created,
			Model:   req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
				FinishReason: openai.FinishReasonStop,
			}},
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	for _, word := range strings.SplitAfter(reply, " ") {
		chunk := openai.ChatCompletionStreamResponse{
			ID:      "chatcmpl-mock",
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []openai.ChatCompletionStreamChoice{{
				Delta: openai.ChatCompletionStreamChoiceDelta{Content: word},
			}},
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return
		}
		c.Writer.Flush()
	}
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}
