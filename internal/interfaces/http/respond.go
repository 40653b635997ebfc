package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"finsight/internal/shared/apperr"
)

const maxBodyBytes = 1 << 20

// envelope is the wire shape of every response except /health.
type envelope struct {
	OK        bool   `json:"ok"`
	Connected *bool  `json:"connected,omitempty"`
	Data      any    `json:"data,omitempty"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

func writeResult(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, Result: result})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	if apperr.KindOf(err) == apperr.KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status := statusFor(err)

	event := log.Error()
	if status < http.StatusInternalServerError {
		event = log.Warn()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Str("kind", apperr.KindOf(err).String()).
		Int("status", status).
		Msg("Request failed")

	writeJSON(w, status, envelope{OK: false, Error: err.Error()})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Invalid("body", fmt.Errorf("malformed JSON: %w", err))
	}
	return nil
}
