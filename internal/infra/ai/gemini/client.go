package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

const (
	DefaultModel     = "gemini-2.5-flash"
	DefaultMaxTokens = 4096
)

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models    contentGenerator
	Model     string
	MaxTokens int
}

// NewClient builds a Gemini API client. baseURL is optional.
func NewClient(ctx context.Context, apiKey, baseURL, model string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newClient(gc.Models, model, maxTokens), nil
}

func newClient(models contentGenerator, model string, maxTokens int) *Client {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{models: models, Model: model, MaxTokens: maxTokens}
}

func (c *Client) contents(img evaluation.PreparedImage, prompt string) []*genai.Content {
	return []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: img.MediaType, Data: img.Data}},
			{Text: prompt},
		},
	}}
}

func (c *Client) Evaluate(ctx context.Context, img evaluation.PreparedImage, prompt string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.Model, c.contents(img, prompt), &genai.GenerateContentConfig{
		MaxOutputTokens: int32(c.MaxTokens),
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return "", evaluation.ErrCancelled
		}
		return "", classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: response has no candidates", evaluation.ErrIncompleteResponse)
	}
	return resp.Text(), nil
}

// classify looks only at the API error object. Transport failures are generic.
func classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var p *genai.APIError
		if !errors.As(err, &p) || p == nil {
			return fmt.Errorf("%w: %v", evaluation.ErrService, err)
		}
		apiErr = *p
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
		return fmt.Errorf("%w: %s", evaluation.ErrRateLimited, apiErr.Message)
	}
	return evaluation.ClassifyServiceMessage(apiErr.Message)
}
