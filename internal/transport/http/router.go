package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"negopro-questionnaire/internal/app"
)

// NewRouter wires the REST and WebSocket endpoints of the questionnaire service.
func NewRouter(service *app.QuestionnaireService, log zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	sessions := NewSessionHandler(service, log)
	ws := NewWSHandler(service, log)

	r.Use(requestLogger(log))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/sessions", sessions.Create).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}", sessions.Get).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", sessions.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{id}/fields", sessions.Edit).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/next", sessions.Next).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/back", sessions.Back).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/reset", sessions.Reset).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/prefill", sessions.Prefill).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/payload", sessions.Payload).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/report", sessions.Report).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}/ws", ws.ServeWS).Methods(http.MethodGet)
	return r
}

func requestLogger(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
			next.ServeHTTP(w, r)
		})
	}
}
