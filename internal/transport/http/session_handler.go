package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"negopro-questionnaire/internal/app"
	"negopro-questionnaire/internal/form"
)

// SessionHandler exposes questionnaire sessions over REST.
type SessionHandler struct {
	service *app.QuestionnaireService
	log     zerolog.Logger
}

func NewSessionHandler(service *app.QuestionnaireService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{service: service, log: log}
}

type createRequest struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return
	}
	view, err := h.service.Open(r.Context(), req.ID, req.Source)
	if err != nil {
		h.log.Warn().Str("session", req.ID).Err(err).Msg("open session failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, func(id string) (app.View, error) { return h.service.View(id) }, mux.Vars(r)["id"])
}

// Delete handles DELETE /v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Close(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Edit handles POST /v1/sessions/{id}/fields
//
// {"field":"q1","values":["a"]} replaces a field; {"field":"benefits","value":"equity","on":true}
// toggles one checkbox.
func (h *SessionHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var edit form.Edit
	if err := decodeEdit(r, &edit); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: err.Error()})
		return
	}
	h.respond(w, func(id string) (app.View, error) { return h.service.Edit(id, edit) }, mux.Vars(r)["id"])
}

// Next handles POST /v1/sessions/{id}/next
func (h *SessionHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.respond(w, func(id string) (app.View, error) { return h.service.Next(r.Context(), id) }, mux.Vars(r)["id"])
}

// Back handles POST /v1/sessions/{id}/back
func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.service.Back, mux.Vars(r)["id"])
}

// Reset handles POST /v1/sessions/{id}/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.service.Reset, mux.Vars(r)["id"])
}

// Prefill handles POST /v1/sessions/{id}/prefill
func (h *SessionHandler) Prefill(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.service.Prefill, mux.Vars(r)["id"])
}

// Payload handles GET /v1/sessions/{id}/payload
func (h *SessionHandler) Payload(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Payload(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Report handles GET /v1/sessions/{id}/report
func (h *SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, ok, err := h.service.Report(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: "no report generated yet"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(report.HTML))
}

func (h *SessionHandler) respond(w http.ResponseWriter, fn func(id string) (app.View, error), id string) {
	view, err := fn(id)
	if err != nil {
		h.log.Debug().Str("session", id).Err(err).Msg("session action rejected")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type editError string

func (e editError) Error() string { return string(e) }

func decodeEdit(r *http.Request, edit *form.Edit) error {
	var raw struct {
		form.Edit
		On *bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return editError("invalid edit payload")
	}
	*edit = raw.Edit
	if raw.On != nil {
		edit.Toggle, edit.On = true, *raw.On
	}
	if edit.Field == "" {
		return editError("field is required")
	}
	return nil
}
