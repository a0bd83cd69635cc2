package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondErrorCode writes a JSON error response with an explicit status
// and error code, for call sites that have not yet been routed through
// the apierr taxonomy.
func RespondErrorCode(w http.ResponseWriter, status int, errCode, message string) {
	Respond(w, status, ErrorResponse{Error: errCode, Message: message})
}

// RespondError writes a JSON error response derived from err's apierr
// taxonomy code (spec.md §7), or 500 if err is not an *apierr.Error.
func RespondError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		slog.Error("unclassified error reaching response writer", "error", err)
		RespondErrorCode(w, http.StatusInternalServerError, string(apierr.Internal), "internal error")
		return
	}

	RespondErrorCode(w, apiErr.Status(), string(apiErr.Code), apiErr.Message)
}
