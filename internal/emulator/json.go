package emulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse mirrors the error envelope of Google REST APIs.
type ErrorResponse struct {
	Error ErrorStatus `json:"error"`
}

// ErrorStatus is the body of an ErrorResponse.
type ErrorStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// statusNames maps HTTP statuses to canonical Google API status names.
var statusNames = map[int]string{
	http.StatusBadRequest:          "INVALID_ARGUMENT",
	http.StatusUnauthorized:        "UNAUTHENTICATED",
	http.StatusConflict:            "ABORTED",
	http.StatusInternalServerError: "INTERNAL",
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeAPIError writes a Google-style JSON error response.
func writeAPIError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, ErrorResponse{Error: ErrorStatus{
		Code:    status,
		Message: message,
		Status:  statusNames[status],
	}}, status)
}
