package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilType reads messages until one carries the wanted type field,
// skipping broadcast payloads that may interleave with replies.
func readUntilType(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %q: %v", want, err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("bad message %q: %v", data, err)
		}
		if decoded["type"] == want {
			return decoded
		}
	}
}

func TestWSWelcome(t *testing.T) {
	s, _, ts := newTestServer(t, true)

	conn := dialWS(t, ts.URL)
	welcome := readUntilType(t, conn, "welcome")
	if welcome["message"] == "" {
		t.Error("welcome carries no message")
	}

	deadline := time.After(2 * time.Second)
	for s.hub.ClientCount() != 1 {
		select {
		case <-deadline:
			t.Fatalf("client count = %d, want 1", s.hub.ClientCount())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestWSBroadcast(t *testing.T) {
	_, m, ts := newTestServer(t, true)

	conn := dialWS(t, ts.URL)
	readUntilType(t, conn, "welcome")

	m.Offer(feedPayload(t, 7.5, [3]float64{0.3, 0, 0.2}, 15))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("bad message %q: %v", data, err)
		}
		if decoded["timestamp"] == 7.5 {
			if _, exists := decoded["server_stats"]; !exists {
				t.Error("broadcast payload missing server_stats")
			}
			return
		}
	}
}

func TestWSResetCommand(t *testing.T) {
	_, m, ts := newTestServer(t, true)

	conn := dialWS(t, ts.URL)
	readUntilType(t, conn, "welcome")

	ingestAndWait(t, t.Context(), m, feedPayload(t, 1.0, [3]float64{0.3, 0, 0.2}, 0))

	if err := conn.WriteJSON(map[string]string{"command": "reset_trajectory"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntilType(t, conn, "ack")

	points, err := m.Trajectory(t.Context(), 0)
	if err != nil {
		t.Fatalf("Trajectory: %v", err)
	}
	if len(points) != 0 {
		t.Errorf("trajectory after reset = %d points", len(points))
	}
}

func TestWSExportCommand(t *testing.T) {
	_, m, ts := newTestServer(t, true)

	conn := dialWS(t, ts.URL)
	readUntilType(t, conn, "welcome")

	ingestAndWait(t, t.Context(), m, feedPayload(t, 1.0, [3]float64{0.3, 0, 0.2}, 0))
	ingestAndWait(t, t.Context(), m, feedPayload(t, 2.0, [3]float64{0.31, 0, 0.2}, 0))

	if err := conn.WriteJSON(map[string]string{"command": "export_data"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	export := readUntilType(t, conn, "export")

	payload, ok := export["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload = %T", export["payload"])
	}
	trajectory, ok := payload["trajectory"].([]any)
	if !ok || len(trajectory) != 2 {
		t.Errorf("export trajectory = %v, want 2 points", payload["trajectory"])
	}
}

func TestWSUnknownCommand(t *testing.T) {
	_, _, ts := newTestServer(t, true)

	conn := dialWS(t, ts.URL)
	readUntilType(t, conn, "welcome")

	if err := conn.WriteJSON(map[string]string{"command": "self_destruct"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply := readUntilType(t, conn, "error")
	message, _ := reply["message"].(string)
	if !strings.Contains(message, "self_destruct") {
		t.Errorf("error message = %q, want the command echoed", message)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntilType(t, conn, "error")
}
