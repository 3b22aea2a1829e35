package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"negopro-questionnaire/internal/domain"
)

// statusFor maps use-case errors to HTTP status codes.
func statusFor(err error) int {
	var (
		schemaErr *domain.SchemaError
		submitErr *domain.SubmissionError
	)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrSchemaNotLoaded), errors.Is(err, domain.ErrLoadSuperseded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSourceNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrIncomplete):
		return http.StatusUnprocessableEntity
	case errors.As(err, &schemaErr), errors.As(err, &submitErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorPayload struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func errorBody(err error) errorPayload {
	body := errorPayload{Message: err.Error()}
	var submitErr *domain.SubmissionError
	if errors.As(err, &submitErr) {
		body.Reason = submitErr.Reason
	}
	return body
}

// writeJSON encodes before writing the header so an unencodable value turns
// into a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorPayload{Message: "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody(err))
}
