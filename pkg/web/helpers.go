package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// ErrorBody is the JSON shape of every error reply.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func RespondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error encoding response to JSON", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

// RespondError writes an ErrorBody with the given category and message.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, category, message string) {
	RespondJSON(w, logger, status, ErrorBody{Error: category, Message: message})
}

// RespondErrorDetails is RespondError with a details payload.
func RespondErrorDetails(w http.ResponseWriter, logger *slog.Logger, status int, category, message string, details any) {
	RespondJSON(w, logger, status, ErrorBody{Error: category, Message: message, Details: details})
}

// DecodeJSON decodes the request body into dst. An empty body leaves dst untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

const maxBodyBytes = 1 << 20
