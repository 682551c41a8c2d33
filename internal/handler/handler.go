package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"storefront/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code, code and message.
func writeError(w http.ResponseWriter, status int, code, message string, logger zerolog.Logger) {
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Str("code", code).Int("status", status).Msg(message)
	writeJSON(w, status, model.ErrorResponse{Success: false, Error: code, Message: message})
}

// writeServiceError maps a service error onto its response.
// Errors without a domain kind are reported as a generic 500; the detail stays in the logs.
func writeServiceError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	if de, ok := model.AsDomainError(err); ok {
		writeError(w, de.Kind.HTTPStatus(), de.Code, de.Message, logger)
		return
	}
	logger.Error().Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
		Success: false,
		Error:   model.ErrCodeInternalError,
		Message: "Ha ocurrido un error interno, inténtalo de nuevo más tarde",
	})
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger zerolog.Logger) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "Cuerpo de la petición no válido"
		if errors.Is(err, io.EOF) {
			msg = "Cuerpo de la petición vacío"
		}
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidJSON, msg, logger)
		return false
	}
	return true
}

// uuidParam parses a UUID route parameter, writing a 400 on failure.
func uuidParam(w http.ResponseWriter, r *http.Request, name string, logger zerolog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeMissingField, "Identificador no válido", logger)
		return uuid.Nil, false
	}
	return id, true
}
