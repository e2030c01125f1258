package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"slide-master/internal/domain"
	"slide-master/internal/integrations/paramstore"
)

const (
	DefaultModel          = "gemini-2.0-flash"
	DefaultTokenParameter = "gemini-token"

	defaultTemperature = 0.7
)

// StatusError carries the HTTP status of a failed Gemini call.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: status %d: %s", e.Code, e.Message)
}

func (e *StatusError) HTTPStatusCode() int { return e.Code }

// Client completes deck prompts with the Gemini API. The underlying genai
// client is built on first use, once the API key has been resolved.
type Client struct {
	secret      *paramstore.Secret
	baseURL     string
	httpClient  *http.Client
	model       string
	temperature float32

	mu     sync.Mutex
	client *genai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSpace(baseURL) }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

func NewClient(ps paramstore.Getter, tokenParam string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("gemini: paramstore getter must not be nil")
	}
	if strings.TrimSpace(tokenParam) == "" {
		tokenParam = DefaultTokenParameter
	}
	secret, err := paramstore.NewSecret(ps, tokenParam)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{
		secret:      secret,
		httpClient:  &http.Client{Timeout: 90 * time.Second},
		model:       DefaultModel,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Model() string { return c.model }

func (c *Client) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	apiKey, err := c.secret.Value(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: resolve api key: %w", err)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.client = client
	return client, nil
}

// Complete asks for a JSON response and returns the concatenated text parts.
func (c *Client) Complete(ctx context.Context, prompt domain.Prompt) (string, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return "", err
	}

	temperature := c.temperature
	resp, err := client.Models.GenerateContent(ctx,
		c.model,
		[]*genai.Content{genai.NewContentFromText(prompt.User, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       &temperature,
		},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("gemini: generate: %w", &StatusError{Code: apiErr.Code, Message: apiErr.Message})
		}
		return "", fmt.Errorf("gemini: generate: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}
