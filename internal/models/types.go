package models

// Roles accepted in ChatMessage.Role
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Object tags of the OpenAI wire format
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectModel               = "model"
	ObjectList                = "list"
)

// FinishReasonStop marks a completed answer
const FinishReasonStop = "stop"

// InvokeRequest is the body of POST /invoke
type InvokeRequest struct {
	Prompt string `json:"prompt"`
}

// InvokeResponse is the success body of POST /invoke
type InvokeResponse struct {
	Response string `json:"response"`
}

// ErrorResponse is returned on every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /
type HealthResponse struct {
	Status string `json:"status"`
}

// ChatMessage represents a message in the chat
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents an incoming chat completion request.
// Sampling parameters sent by clients are accepted and ignored.
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// LastContent returns the content of the active turn
func (r *ChatCompletionRequest) LastContent() string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Content
}

// ChatCompletionChoice represents a completion choice
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage is always zero; tokens are not counted
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse represents the non-streaming chat completion reply
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// ChunkDelta carries an incremental fragment
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// ChunkChoice is a choice in a streaming chunk. FinishReason stays nil
// (serialized as null) for every content chunk.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is one server-sent event of a streamed completion
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// StreamError is the payload of the error event sent when a stream aborts
type StreamError struct {
	Error StreamErrorDetail `json:"error"`
}

// StreamErrorDetail mirrors the OpenAI error object
type StreamErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Model describes an entry of GET /v1/models
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the body of GET /v1/models
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
