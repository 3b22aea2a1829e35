package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestWebSocketQuestionnaireFlow(t *testing.T) {
	service, _ := newTestService(t)
	server := httptest.NewServer(NewRouter(service, zerolog.Nop()))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/v1/sessions/ws-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial view first.
	_, payload := readNext(conn, t, "view")
	if payload["sessionId"] != "ws-1" || payload["loaded"] != true {
		t.Fatalf("unexpected initial view %v", payload)
	}

	send := func(msg map[string]any) {
		t.Helper()
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send(map[string]any{"type": "edit", "payload": map[string]any{"field": "q1", "values": []string{"a"}}})
	send(map[string]any{"type": "next"})

	// Views may coalesce; wait for the one on the second phase.
	for i := 0; i < 10; i++ {
		_, payload = readNext(conn, t, "view")
		if payload["phaseIndex"] == float64(1) {
			break
		}
	}
	if payload["phaseIndex"] != float64(1) {
		t.Fatalf("expected to reach phase 2, last view %v", payload)
	}

	send(map[string]any{"type": "dance"})
	for i := 0; i < 10; i++ {
		typ, p := readNext(conn, t, "")
		if typ == "error" {
			if p["message"] != "unsupported message type" {
				t.Fatalf("unexpected error payload %v", p)
			}
			return
		}
	}
	t.Fatalf("expected error for unsupported message")
}

func TestWebSocketSchemaFailure(t *testing.T) {
	service, _ := newTestService(t)
	server := httptest.NewServer(NewRouter(service, zerolog.Nop()))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/v1/sessions/ws-2/ws?source=nowhere"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, payload := readNext(conn, t, "error")
	if payload["message"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestWebSocketRefusesDisallowedSource(t *testing.T) {
	service, _ := newTestService(t)
	server := httptest.NewServer(NewRouter(service, zerolog.Nop()))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/v1/sessions/ws-3/ws?source=salary"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "view")

	if err := conn.WriteJSON(map[string]any{"type": "load", "payload": map[string]string{"source": "file:/etc/passwd"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i := 0; i < 10; i++ {
		typ, p := readNext(conn, t, "")
		if typ == "error" {
			if p["message"] != "questionnaire source not allowed" {
				t.Fatalf("unexpected error payload %v", p)
			}
			return
		}
	}
	t.Fatalf("expected error for disallowed source")
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
