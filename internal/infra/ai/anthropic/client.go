package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 4096
	apiVersion       = "2023-06-01"
)

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Client calls the Messages API directly. One call per Evaluate, no retries.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Source *imageSource `json:"source,omitempty"`
	Text   string       `json:"text,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) buildRequest(img evaluation.PreparedImage, prompt string) request {
	return request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []message{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: img.MediaType,
						Data:      base64.StdEncoding.EncodeToString(img.Data),
					},
				},
				{Type: "text", Text: prompt},
			},
		}},
	}
}

// Evaluate returns the model's raw text. Service errors are classified with
// evaluation.ClassifyServiceMessage; an aborted context yields evaluation.ErrCancelled.
func (c *Client) Evaluate(ctx context.Context, img evaluation.PreparedImage, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: anthropic api key not configured", evaluation.ErrService)
	}

	payload, err := json.Marshal(c.buildRequest(img, prompt))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return "", evaluation.ErrCancelled
		}
		return "", fmt.Errorf("%w: %v", evaluation.ErrService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", evaluation.ErrCancelled
		}
		return "", fmt.Errorf("%w: read response: %v", evaluation.ErrService, err)
	}
	c.log.Debug("anthropic response",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: status %d: unreadable response body", evaluation.ErrService, resp.StatusCode)
	}
	if out.Error != nil {
		msg := out.Error.Message
		if msg == "" {
			msg = out.Error.Type
		}
		return "", evaluation.ClassifyServiceMessage(msg)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", evaluation.ErrService, resp.StatusCode)
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("%w: response has no content", evaluation.ErrIncompleteResponse)
	}
	return out.Content[0].Text, nil
}
