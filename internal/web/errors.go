package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. A handler encounters an error and calls s.respondError(w, r, err)
//  2. The error is mapped to an HTTP status from the core taxonomy
//  3. The technical error is logged with the request ID for correlation
//  4. The client receives a JSON body with a user message and support code

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tabledrop/tabledrop/internal/core"
	"github.com/tabledrop/tabledrop/internal/ingest"
	"github.com/tabledrop/tabledrop/internal/logging"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// respondError logs the technical error and writes a JSON error response
// with a status derived from the error type.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:  userMsg.Message,
		Action: userMsg.Action,
		Code:   userMsg.Code,
	})
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var malformed *ingest.MalformedInputError
	if errors.As(err, &malformed) {
		return http.StatusBadRequest
	}

	var conflict *core.SchemaConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict
	}

	var invalid *core.ValidationError
	if errors.As(err, &invalid) {
		return http.StatusUnprocessableEntity
	}

	if errors.Is(err, core.ErrNotFound) {
		return http.StatusNotFound
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// writeBadRequest writes a 400 with a plain message for request-shape
// problems that never reach the core (missing file, bad id, bad JSON).
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "REQ001"})
}
