package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// Handler writes errors as JSON responses.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// HandleError maps err onto a status code and error code and writes the response.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode, errorCode := h.Classify(err)
	requestID := r.Header.Get("X-Request-ID")

	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}

	h.WriteErrorResponse(w, statusCode, errorCode, err.Error(), requestID)
}

// Classify returns the HTTP status and error code for err.
func (h *Handler) Classify(err error) (int, ErrorCode) {
	if err == nil {
		return http.StatusOK, ""
	}
	if pe, ok := AsPanelError(err); ok {
		return pe.HTTPStatus(), pe.Code
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, ErrorCodeTimeout
	}
	return http.StatusInternalServerError, ErrorCodeInternalError
}

// WriteErrorResponse writes a formatted error response.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}

// WriteValidationError writes a 400 response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

// WriteRateLimitedError writes a 429 response.
func (h *Handler) WriteRateLimitedError(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusTooManyRequests, ErrorCodeRateLimited, "rate limit exceeded", requestID)
}
