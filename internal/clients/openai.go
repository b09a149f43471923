package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements ModelClient for any OpenAI-compatible endpoint
type OpenAIClient struct {
	config ModelClientConfig
	client *openai.Client
}

// NewOpenAIClient creates a new model client
func NewOpenAIClient(config ModelClientConfig) *OpenAIClient {
	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = strings.TrimRight(config.APIBase, "/")
	if !strings.HasPrefix(clientConfig.BaseURL, "http://") && !strings.HasPrefix(clientConfig.BaseURL, "https://") {
		clientConfig.BaseURL = "http://" + clientConfig.BaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &OpenAIClient{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// buildRequest converts to the go-openai request format
func (c *OpenAIClient) buildRequest(req *Request, stream bool) openai.ChatCompletionRequest {
	// go-openai drops a zero temperature (omitempty); the smallest non-zero
	// value is the documented way to ask for greedy sampling.
	temperature := c.config.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    make([]openai.ChatCompletionMessage, len(req.Messages)),
		Temperature: temperature,
		MaxTokens:   c.config.MaxTokens,
		Stop:        req.Stop,
		Stream:      stream,
	}
	for i, msg := range req.Messages {
		openaiReq.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return openaiReq
}

func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", mapError(err))
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) CompleteStream(ctx context.Context, req *Request) (<-chan Delta, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("create chat completion stream: %w", mapError(err))
	}

	resultChan := make(chan Delta)

	go func() {
		defer close(resultChan)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				select {
				case resultChan <- Delta{Err: fmt.Errorf("receive stream: %w", mapError(err))}:
				case <-ctx.Done():
				}
				return
			}

			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case resultChan <- Delta{Content: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return resultChan, nil
}

// mapError converts go-openai error types into APIError so callers do not
// depend on the SDK
func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return err
}
