package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"slide-master/internal/integrations/telegram"
	"slide-master/internal/usecase"
)

type stubDispatcher struct {
	err   error
	in    telegram.Update
	calls int
}

func (s *stubDispatcher) HandleUpdate(_ context.Context, u telegram.Update) error {
	s.calls++
	s.in = u
	return s.err
}

const updateBody = `{"update_id":5,"message":{"message_id":1,"from":{"id":42},"chat":{"id":42},"text":"Black holes"}}`

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/webhook",
		Headers: map[string]string{
			"Content-Type":    "application/json",
			headerSecretToken: "s3cret",
		},
		Body: body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, "", nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d, "s3cret", nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(updateBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(5), d.in.UpdateID)
	require.Equal(t, "Black holes", d.in.Message.Text)
	require.True(t, parseBody[okResponse](t, resp.Body).OK)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_InvalidBody(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d, "", nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(usecase.ErrorInvalidInput), parseBody[errorResponse](t, resp.Body).Error)
	require.Zero(t, d.calls)
}

func TestHandle_SecretMismatch(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d, "other", nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(updateBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, d.calls)
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	h, err := NewHandler(&stubDispatcher{}, "", nil)
	require.NoError(t, err)

	event := makeEvent(updateBody)
	event.HTTPMethod = http.MethodGet
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_DispatchErrorAsksForRetry(t *testing.T) {
	h, err := NewHandler(&stubDispatcher{err: errors.New("dynamodb down")}, "", nil)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(updateBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInternal), out.Error)
	require.NotContains(t, resp.Body, "dynamodb")
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, err := NewHandler(&stubDispatcher{}, "", nil)
	require.NoError(t, err)

	event := makeEvent(updateBody)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestRoutes(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d, "s3cret", nil)
	require.NoError(t, err)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(updateBody))
	require.NoError(t, err)
	req.Header.Set(headerSecretToken, "s3cret")
	req.Header.Set(headerCorrelationID, "corr-9")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "corr-9", res.Header.Get(headerCorrelationID))
	require.Equal(t, 1, d.calls)

	res, err = http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(updateBody))
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, err = http.Get(srv.URL + "/webhook")
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}
