package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

const (
	DefaultModel     = "gpt-4o"
	DefaultMaxTokens = 4096
)

type Client struct {
	*openai.Client
	Model     string
	MaxTokens int
}

// NewClient builds a chat-completions client. baseURL may be empty for the public API.
func NewClient(apiKey, baseURL, model string, maxTokens int) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model, MaxTokens: maxTokens}
}

func dataURI(img evaluation.PreparedImage) string {
	return "data:" + img.MediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func (c *Client) request(img evaluation.PreparedImage, prompt string) openai.ChatCompletionRequest {
	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURI(img), Detail: openai.ImageURLDetailHigh},
				},
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
			},
		}},
	}
	// reasoning models reject max_tokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = c.MaxTokens
	} else {
		req.MaxTokens = c.MaxTokens
	}
	return req
}

func (c *Client) Evaluate(ctx context.Context, img evaluation.PreparedImage, prompt string) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, c.request(img, prompt))
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", evaluation.ErrIncompleteResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return evaluation.ErrCancelled
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return evaluation.ClassifyServiceMessage(apiErr.Message)
	}
	return fmt.Errorf("%w: %v", evaluation.ErrService, err)
}
