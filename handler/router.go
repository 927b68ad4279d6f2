package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"pioneer-chat/internal/logging"
	"pioneer-chat/internal/observability"
	"pioneer-chat/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Router returns the HTTP routes for the standalone server.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(withCorrelationID)
	r.Use(recoverPanics)
	r.Use(middleware.StripSlashes)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		write(w, index())
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		write(w, health())
	})
	r.Post("/chat", h.serveChat)
	r.Post("/register", h.serveRegister)
	r.Handle("/metrics", observability.MetricsHandler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		write(w, errorJSON(http.StatusNotFound, codeNotFound, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		write(w, errorJSON(http.StatusMethodNotAllowed, codeMethodNotAllowed, r.Method+" "+r.URL.Path))
	})
	return r
}

func (h *Handler) serveChat(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r.Context())
	body, err := readBody(r)
	if err != nil {
		logger.Warn("failed to read chat request body", "err", err)
		resp := errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "unreadable_body")
		h.metrics.ObserveChat(resp.status)
		write(w, resp)
		return
	}
	write(w, h.handleChat(r.Context(), logger, body))
}

func (h *Handler) serveRegister(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r.Context())
	body, err := readBody(r)
	if err != nil {
		logger.Warn("failed to read register request body", "err", err)
		write(w, errorJSON(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "unreadable_body"))
		return
	}
	write(w, h.handleRegister(r.Context(), logger, body))
}

func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		ctx := logging.WithLogger(r.Context(), slog.With("correlation_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverPanics turns a handler panic into the JSON internal error response.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			requestLogger(r.Context()).Error("panic while serving request",
				"panic", rec, "path", r.URL.Path, "stack", string(debug.Stack()))
			write(w, internalErrorResponse())
		}()
		next.ServeHTTP(w, r)
	})
}

func requestLogger(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func write(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", resp.contentType)
	w.WriteHeader(resp.status)
	_, _ = w.Write(resp.body)
}
