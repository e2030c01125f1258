package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"slide-master/internal/domain"
	"slide-master/internal/integrations/paramstore"
)

const (
	DefaultBaseURL        = "https://api.telegram.org"
	DefaultTokenParameter = "bot-token"

	// maxCaptionRunes is the Bot API caption limit.
	maxCaptionRunes = 1024
	maxMessageRunes = 4096
)

// APIError is a Bot API call that returned ok=false or a non-2xx status.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}

func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a minimal Bot API client covering the methods the bot uses.
type Client struct {
	baseURL    string
	httpClient *http.Client
	secret     *paramstore.Secret
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client whose bot token is read through ps on first use.
func NewClient(ps paramstore.Getter, tokenParam string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("telegram: paramstore getter must not be nil")
	}
	if strings.TrimSpace(tokenParam) == "" {
		tokenParam = DefaultTokenParameter
	}
	secret, err := paramstore.NewSecret(ps, tokenParam)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		secret:     secret,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return c, nil
}

func (c *Client) methodURL(ctx context.Context, method string) (string, error) {
	token, err := c.secret.Value(ctx)
	if err != nil {
		return "", fmt.Errorf("telegram: resolve bot token: %w", err)
	}
	return c.baseURL + "/bot" + token + "/" + method, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID, text string, markup *InlineKeyboardMarkup) (Message, error) {
	var out Message
	err := c.callJSON(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, ReplyMarkup: markup}, &out)
	return out, err
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	return c.callJSON(ctx, "answerCallbackQuery", answerCallbackRequest{CallbackQueryID: callbackID, Text: text}, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID string, messageID int64) error {
	return c.callJSON(ctx, "deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: messageID}, nil)
}

// SendDocument uploads the artifact file as a multipart document.
func (c *Client) SendDocument(ctx context.Context, chatID string, a domain.Artifact, caption string) (Message, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return Message{}, fmt.Errorf("telegram: open document: %w", err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("chat_id", chatID)
	if caption = truncateRunes(caption, maxCaptionRunes); caption != "" {
		_ = mw.WriteField("caption", caption)
	}

	name := a.Name
	if name == "" {
		name = "deck.pptx"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="document"; filename=%q`, name))
	if a.ContentType != "" {
		h.Set("Content-Type", a.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return Message{}, fmt.Errorf("telegram: create document part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Message{}, fmt.Errorf("telegram: read document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Message{}, fmt.Errorf("telegram: close multipart: %w", err)
	}

	var out Message
	if err := c.call(ctx, "sendDocument", mw.FormDataContentType(), &body, &out); err != nil {
		return Message{}, err
	}
	return out, nil
}

// Deliver sends the artifact to the chat. It satisfies the engine's
// delivery channel.
func (c *Client) Deliver(ctx context.Context, chatID string, a domain.Artifact, caption string) error {
	_, err := c.SendDocument(ctx, chatID, a, caption)
	return err
}

// SendLink posts text with a single URL button. Link delivery uses it when
// the document is served from object storage.
func (c *Client) SendLink(ctx context.Context, chatID, text, label, link string) error {
	markup := &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{{Text: label, URL: link}}}}
	_, err := c.SendMessage(ctx, chatID, truncateRunes(text, maxMessageRunes), markup)
	return err
}

func (c *Client) callJSON(ctx context.Context, method string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s request: %w", method, err)
	}
	return c.call(ctx, method, "application/json", bytes.NewReader(body), out)
}

func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader, out any) error {
	endpoint, err := c.methodURL(ctx, method)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	res, err := c.httpClient.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return &APIError{Method: method, StatusCode: res.StatusCode, Description: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !env.OK || res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{Method: method, StatusCode: res.StatusCode, Description: env.Description}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
