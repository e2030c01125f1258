package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"slide-master/internal/domain"
	"slide-master/internal/integrations/paramstore"
)

const (
	// DefaultBaseURL points at Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
	// DefaultTokenParameter is the parameter holding {"token":"..."}.
	DefaultTokenParameter = "groq-token"

	defaultTemperature = 0.7
)

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client completes deck prompts against an OpenAI-compatible chat endpoint.
type Client struct {
	sdk         sdk.Client
	secret      *paramstore.Secret
	baseURL     string
	httpClient  *http.Client
	model       string
	temperature float64
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

// NewClient creates a Client whose API key is read through ps from the
// tokenParam parameter on first use.
func NewClient(ps paramstore.Getter, tokenParam string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	if strings.TrimSpace(tokenParam) == "" {
		tokenParam = DefaultTokenParameter
	}
	secret, err := paramstore.NewSecret(ps, tokenParam)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	c := &Client{
		secret:      secret,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 90 * time.Second},
		model:       DefaultModel,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	// Retries are disabled; the engine owns the timeout and failure policy.
	c.sdk = sdk.NewClient(
		option.WithBaseURL(c.baseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	return c, nil
}

func (c *Client) Model() string { return c.model }

// Complete sends the prompt in JSON-object mode and returns the raw content
// of the first choice.
func (c *Client) Complete(ctx context.Context, prompt domain.Prompt) (string, error) {
	apiKey, err := c.secret.Value(ctx)
	if err != nil {
		return "", fmt.Errorf("openai: resolve api key: %w", err)
	}

	params := sdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(prompt.System),
			sdk.UserMessage(prompt.User),
		},
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &sdk.ResponseFormatJSONObjectParam{},
		},
		Temperature: sdk.Float(c.temperature),
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", statusError(err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("openai: empty completion")
	}
	return content, nil
}

// statusError converts SDK API errors into HTTPStatusError so callers can
// classify them without importing the SDK.
func statusError(err error) error {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	out := &HTTPStatusError{StatusCode: apiErr.StatusCode, Body: apiErr.RawJSON()}
	if apiErr.Request != nil && apiErr.Request.URL != nil {
		out.URL = apiErr.Request.URL.String()
	}
	return out
}
