package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/polisai/polis-chain/pkg/cloudevent"
	"github.com/polisai/polis-chain/pkg/domain"
	"go.opentelemetry.io/otel/trace"
)

// HeaderRequestID carries the correlation id of an inbound request.
const HeaderRequestID = "X-Request-ID"

type requestIDContextKey struct{}

// RouterHandler serves the router over HTTP. The resolved primary event is
// the reply; every other delivery is dispatched detached.
type RouterHandler struct {
	router     *Router
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// RouterHandlerConfig holds configuration for creating a RouterHandler.
type RouterHandlerConfig struct {
	Router     *Router
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// NewRouterHandler constructs an http.Handler around a router and dispatcher.
func NewRouterHandler(cfg RouterHandlerConfig) *RouterHandler {
	if cfg.Router == nil {
		panic("engine: router is required")
	}
	if cfg.Dispatcher == nil {
		panic("engine: dispatcher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RouterHandler{
		router:     cfg.Router,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
	}
}

// ServeHTTP decodes the inbound CloudEvent, routes it and replies with the
// primary event.
func (h *RouterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w = &statusRecorder{ResponseWriter: w}

	requestID := extractRequestID(r)
	ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
	r = r.WithContext(ctx)
	w.Header().Set(HeaderRequestID, requestID)

	h.logger.Debug("received event request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"request_id", requestID,
	)

	if r.Method != http.MethodPost {
		h.writeErrorResponse(ctx, w, http.StatusMethodNotAllowed, domain.CodeInvalidEvent, "events must be posted")
		return
	}

	in, err := cloudevent.FromRequest(r)
	if err != nil {
		h.logger.Warn("rejecting undecodable event", "request_id", requestID, "error", err)
		h.writeError(ctx, w, err)
		return
	}

	plan, err := h.router.Route(ctx, in)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	h.dispatcher.Dispatch(ctx, plan)

	if err := cloudevent.WriteResponse(ctx, w, plan.Primary); err != nil {
		h.logger.Error("failed to write reply event", "request_id", requestID, "event_id", plan.Primary.ID, "error", err)
		h.writeErrorResponse(ctx, w, http.StatusInternalServerError, domain.CodeInternal, "failed to encode reply event")
	}
}

// extractRequestID returns the X-Request-ID header or a new UUIDv4.
func extractRequestID(r *http.Request) string {
	if headerID := r.Header.Get(HeaderRequestID); headerID != "" {
		return headerID
	}
	return uuid.New().String()
}

// RequestIDFromContext extracts the request id from the request context.
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return requestID
	}
	return ""
}

// ClassifyError maps a routing error onto its HTTP status and error body.
func ClassifyError(err error) (int, *domain.DomainError) {
	switch {
	case errors.Is(err, domain.ErrInvalidEvent):
		return http.StatusBadRequest, &domain.DomainError{Err: err, Code: domain.CodeInvalidEvent, Message: err.Error()}
	case IsRoutingError(err):
		return http.StatusBadRequest, &domain.DomainError{Err: err, Code: domain.CodeRoutingError, Message: err.Error()}
	case errors.Is(err, domain.ErrStepFailed):
		return http.StatusInternalServerError, &domain.DomainError{Err: err, Code: domain.CodeStepFailed, Message: err.Error()}
	default:
		return http.StatusInternalServerError, &domain.DomainError{Err: err, Code: domain.CodeInternal, Message: "internal error"}
	}
}

func (h *RouterHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, derr := ClassifyError(err)
	h.writeErrorResponse(ctx, w, status, derr.Code, derr.Message)
}

func (h *RouterHandler) writeErrorResponse(ctx context.Context, w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	var traceID string
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
	}

	errResp := domain.ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: traceID,
	}
	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

// statusRecorder wraps http.ResponseWriter to prevent multiple WriteHeader calls.
type statusRecorder struct {
	http.ResponseWriter
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.ResponseWriter.WriteHeader(code)
		r.wroteHeader = true
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hijacker.Hijack()
}
