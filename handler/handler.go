package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"pioneer-chat/internal/domain"
	"pioneer-chat/internal/logging"
	"pioneer-chat/internal/observability"
	"pioneer-chat/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"

	contentTypeJSON = "application/json"
	contentTypeText = "text/plain; charset=utf-8"

	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

var errEmptyBody = errors.New("empty body")

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type RegisterUseCase interface {
	Register(ctx context.Context, in usecase.RegisterInput) (usecase.RegisterOutput, error)
}

// Handler serves the chat API over both net/http (see Router) and API Gateway
// proxy events. Both transports share the same request handling.
type Handler struct {
	chat     ChatUseCase
	register RegisterUseCase
	metrics  *observability.Metrics
}

type chatRequest struct {
	Message             string           `json:"message"`
	ConversationHistory []domain.Message `json:"conversation_history"`
	UserID              string           `json:"user_id"`
	UserEmail           string           `json:"user_email"`
}

type chatResponse struct {
	Response        string                `json:"response"`
	RelevantContext []domain.ContextChunk `json:"relevant_context"`
	UserProfile     *string               `json:"user_profile"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type indexResponse struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// response is a transport-neutral HTTP answer.
type response struct {
	status      int
	contentType string
	body        []byte
}

func NewHandler(chat ChatUseCase, register RegisterUseCase, metrics *observability.Metrics) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if register == nil {
		return nil, errors.New("handler: register use case must not be nil")
	}
	return &Handler{chat: chat, register: register, metrics: metrics}, nil
}

// HandleAPIGateway is the Lambda entry point for API Gateway proxy requests.
func (h *Handler) HandleAPIGateway(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := slog.With("correlation_id", correlationID)
	ctx = logging.WithLogger(ctx, logger)

	body := []byte(event.Body)
	var resp response
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			resp = errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_body_encoding")
		}
		body = decoded
	}
	if resp.status == 0 {
		resp = h.safeRoute(ctx, logger, event.HTTPMethod, event.Path, body)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: resp.status,
		Headers: map[string]string{
			"Content-Type":    resp.contentType,
			correlationHeader: correlationID,
		},
		Body: string(resp.body),
	}, nil
}

// safeRoute answers a panic with the same JSON 500 the router middleware uses.
func (h *Handler) safeRoute(ctx context.Context, logger *slog.Logger, method, path string, body []byte) (resp response) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while serving request", "panic", rec, "path", path, "stack", string(debug.Stack()))
			resp = internalErrorResponse()
		}
	}()
	return h.route(ctx, logger, method, path, body)
}

func (h *Handler) route(ctx context.Context, logger *slog.Logger, method, path string, body []byte) response {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	var want string
	switch path {
	case "/", "/health":
		want = http.MethodGet
	case "/chat", "/register":
		want = http.MethodPost
	default:
		return errorJSON(http.StatusNotFound, codeNotFound, path)
	}
	if !strings.EqualFold(method, want) {
		return errorJSON(http.StatusMethodNotAllowed, codeMethodNotAllowed, method+" "+path)
	}

	switch path {
	case "/":
		return index()
	case "/health":
		return health()
	case "/chat":
		return h.handleChat(ctx, logger, body)
	default:
		return h.handleRegister(ctx, logger, body)
	}
}

func index() response {
	return jsonResponse(http.StatusOK, indexResponse{
		Message: "Pioneer + OpenAI Chat API",
		Endpoints: map[string]string{
			"/chat":     "POST - Send a message and get personalized response",
			"/register": "POST - Register a new user",
			"/health":   "GET - Health check",
		},
	})
}

func health() response {
	return jsonResponse(http.StatusOK, healthResponse{Status: "healthy"})
}

func (h *Handler) handleChat(ctx context.Context, logger *slog.Logger, body []byte) response {
	resp := h.chatResponse(ctx, logger, body)
	h.metrics.ObserveChat(resp.status)
	return resp
}

func (h *Handler) chatResponse(ctx context.Context, logger *slog.Logger, body []byte) response {
	var req chatRequest
	if err := decodeJSON(body, &req); err != nil {
		logger.Warn("invalid chat request body", "err", err)
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_json")
	}

	out, err := h.chat.Chat(ctx, usecase.ChatInput{
		Message:   req.Message,
		History:   req.ConversationHistory,
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
	})
	if err != nil {
		return errorResult(logger, err)
	}
	return jsonResponse(http.StatusOK, chatResponse{
		Response:        out.Response,
		RelevantContext: out.RelevantContext,
		UserProfile:     out.UserProfile,
	})
}

func (h *Handler) handleRegister(ctx context.Context, logger *slog.Logger, body []byte) response {
	var req registerRequest
	if err := decodeJSON(body, &req); err != nil {
		logger.Warn("invalid register request body", "err", err)
		return errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "invalid_json")
	}

	out, err := h.register.Register(ctx, usecase.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Timezone: req.Timezone,
	})
	if err != nil {
		return errorResult(logger, err)
	}
	return jsonResponse(http.StatusOK, registerResponse{
		Success: true,
		UserID:  out.UserID,
		Message: out.Message,
	})
}

// errorResult maps a use case error to its HTTP answer. Rejected
// registrations are passed through with the upstream status and body.
func errorResult(logger *slog.Logger, err error) response {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		logger.Error("unexpected error", "err", err)
		return internalErrorResponse()
	}

	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return errorJSON(http.StatusBadRequest, string(ucErr.Code), ucErr.Reason)
	case usecase.ErrorRegistrationRejected:
		return passthrough(ucErr.UpstreamStatus, ucErr.UpstreamBody)
	case usecase.ErrorUpstream:
		logger.Error("upstream failure", "reason", ucErr.Reason, "err", ucErr.Err)
		return errorJSON(http.StatusBadGateway, string(ucErr.Code), ucErr.Reason)
	case usecase.ErrorCompletion:
		logger.Error("completion failure", "reason", ucErr.Reason, "err", ucErr.Err)
		return errorJSON(http.StatusInternalServerError, string(ucErr.Code), ucErr.Reason)
	default:
		logger.Error("internal failure", "reason", ucErr.Reason, "err", ucErr.Err)
		return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), ucErr.Reason)
	}
}

func passthrough(status int, body string) response {
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusBadGateway
	}
	contentType := contentTypeText
	if json.Valid([]byte(body)) {
		contentType = contentTypeJSON
	}
	return response{status: status, contentType: contentType, body: []byte(body)}
}

func jsonResponse(status int, v any) response {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "err", err)
		return response{
			status:      http.StatusInternalServerError,
			contentType: contentTypeJSON,
			body:        []byte(`{"error":"INTERNAL_ERROR","detail":"encoding_error"}`),
		}
	}
	return response{status: status, contentType: contentTypeJSON, body: b}
}

func internalErrorResponse() response {
	return errorJSON(http.StatusInternalServerError, string(usecase.ErrorInternal), "internal_error")
}

func errorJSON(status int, code, detail string) response {
	return jsonResponse(status, errorResponse{Error: code, Detail: detail})
}

func decodeJSON(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(body, out)
}

// headerValue looks up a header regardless of case; API Gateway forwards
// client casing unchanged.
func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
