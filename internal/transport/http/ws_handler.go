package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"negopro-questionnaire/internal/app"
	"negopro-questionnaire/internal/form"
)

type WSHandler struct {
	service  *app.QuestionnaireService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuestionnaireService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type loadPayload struct {
	Source string `json:"source"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ServeWS upgrades GET /v1/sessions/{id}/ws and drives the session from
// client messages. Every state change is pushed back as a "view" message.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	source := r.URL.Query().Get("source")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	view, err := h.service.Open(r.Context(), id, source)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorBody(err)})
		return
	}
	id = view.SessionID

	updates, cancel, err := h.service.Subscribe(id)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorBody(err)})
		return
	}
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Str("session", id).Err(err).Msg("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "view", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "view", Payload: view}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(r, id, inbound); err != nil {
			send <- outboundMessage{Type: "error", Payload: errorBody(err)}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch runs one client message. Successful actions are reported through
// the session subscription, so only failures are returned.
func (h *WSHandler) dispatch(r *http.Request, id string, msg inboundMessage) error {
	var err error
	switch msg.Type {
	case "edit", "toggle":
		var edit form.Edit
		if err := json.Unmarshal(msg.Payload, &edit); err != nil || edit.Field == "" {
			return editError("invalid edit payload")
		}
		if msg.Type == "toggle" {
			edit.Toggle = true
		}
		_, err = h.service.Edit(id, edit)
	case "next":
		_, err = h.service.Next(r.Context(), id)
	case "back":
		_, err = h.service.Back(id)
	case "reset":
		_, err = h.service.Reset(id)
	case "prefill":
		_, err = h.service.Prefill(id)
	case "load":
		var p loadPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return editError("invalid load payload")
		}
		_, err = h.service.Open(r.Context(), id, p.Source)
	default:
		return editError("unsupported message type")
	}
	return err
}
