package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"slide-master/internal/integrations/telegram"
	"slide-master/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	// headerSecretToken carries the secret registered with setWebhook.
	headerSecretToken = "X-Telegram-Bot-Api-Secret-Token"

	maxBodyBytes = 1 << 20
)

// Dispatcher handles one decoded webhook update.
type Dispatcher interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handler receives Telegram webhooks over API Gateway or plain HTTP.
type Handler struct {
	dispatcher Dispatcher
	secret     string
	log        *slog.Logger
}

func NewHandler(d Dispatcher, secret string, log *slog.Logger) (*Handler, error) {
	if d == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{dispatcher: d, secret: secret, log: log}, nil
}

// Handle is the Lambda entry point.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, headerCorrelationID)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return respond(http.StatusMethodNotAllowed, corrID, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "method_not_allowed"}), nil
	}
	status, body := h.serve(ctx, corrID, headerValue(req.Headers, headerSecretToken), []byte(req.Body))
	return respond(status, corrID, body), nil
}

// Routes exposes the webhook and a health check for the long-running server.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, "", map[string]string{"status": "ok"})
	})
	r.Post("/webhook", func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get(headerCorrelationID)
		if corrID == "" {
			corrID = uuid.NewString()
		}
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, corrID, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "unreadable_body"})
			return
		}
		status, body := h.serve(r.Context(), corrID, r.Header.Get(headerSecretToken), raw)
		writeJSON(w, status, corrID, body)
	})
	return r
}

func (h *Handler) serve(ctx context.Context, corrID, secret string, raw []byte) (int, any) {
	log := h.log.With("correlation_id", corrID)
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		log.Warn("webhook secret mismatch")
		return http.StatusUnauthorized, errorResponse{Error: "UNAUTHORIZED"}
	}

	var u telegram.Update
	if err := json.Unmarshal(raw, &u); err != nil {
		log.Warn("invalid webhook body", "err", err)
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}
	}

	if err := h.dispatcher.HandleUpdate(ctx, u); err != nil {
		log.Error("update failed", "update_id", u.UpdateID, "err", err)
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	return http.StatusOK, okResponse{OK: true}
}

func respond(status int, corrID string, body any) events.APIGatewayProxyResponse {
	b, _ := json.Marshal(body)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: corrID,
		},
		Body: string(b),
	}
}

func writeJSON(w http.ResponseWriter, status int, corrID string, body any) {
	w.Header().Set("Content-Type", "application/json")
	if corrID != "" {
		w.Header().Set(headerCorrelationID, corrID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// headerValue looks a header up case-insensitively; API Gateway keeps the
// client's casing.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
