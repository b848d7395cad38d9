package server

import (
	"chat-core/errors"
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type failure struct {
	StatusCode int         `json:"statusCode"`
	Kind       errors.Kind `json:"kind"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("Unable to write response", "status", status, "error", err)
	}
}

func respond(w http.ResponseWriter, log *slog.Logger, status int, data any, message string) {
	writeJSON(w, log, status, envelope{StatusCode: status, Data: data, Message: message, Success: true})
}

// respondError maps err to its status; internal details never reach the client.
func respondError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
	}
	writeJSON(w, log, status, failure{
		StatusCode: status,
		Kind:       errors.KindOf(err),
		Message:    errors.PublicMessage(err),
		Success:    false,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if tooLarge(err) {
			return errors.ErrRequestTooLarge
		}
		return errors.ErrInvalidRequest
	}
	return nil
}

func tooLarge(err error) bool {
	var maxBytes *http.MaxBytesError
	return errors.As(err, &maxBytes)
}
