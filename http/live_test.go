package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"etaengine/ml"
)

func dialSession(t *testing.T) *websocket.Conn {
	t.Helper()
	h, _ := newTestHandler(t, Deps{})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestLiveSession_Flow(t *testing.T) {
	conn := dialSession(t)

	initial := readMessage(t, conn)
	if initial.Type != msgState || initial.State != StateIdle || initial.Route == nil {
		t.Fatalf("unexpected initial message %+v", initial)
	}
	if initial.SessionID == "" {
		t.Error("expected session id")
	}

	req := ml.DefaultRequest()
	req.DeliveryLat = 12.99
	req.DeliveryLon = 77.70
	if err := conn.WriteJSON(clientMessage{Type: msgUpdate, Request: &req}); err != nil {
		t.Fatal(err)
	}
	update := readMessage(t, conn)
	if update.Type != msgState || update.State != StateIdle {
		t.Fatalf("update must keep the session idle: %+v", update)
	}
	if update.Route.DistanceKM < 12 || update.Route.DistanceKM > 12.2 {
		t.Errorf("unexpected distance %v", update.Route.DistanceKM)
	}

	if err := conn.WriteJSON(clientMessage{Type: msgPredict}); err != nil {
		t.Fatal(err)
	}
	computing := readMessage(t, conn)
	if computing.State != StateComputing {
		t.Fatalf("expected computing state, got %+v", computing)
	}
	result := readMessage(t, conn)
	if result.Type != msgResult || result.State != StateResult || result.Prediction == nil {
		t.Fatalf("expected result, got %+v", result)
	}
	if result.Prediction.ETAMinutes != int(result.Prediction.RawMinutes) {
		t.Errorf("unexpected prediction %+v", result.Prediction)
	}

	if err := conn.WriteJSON(clientMessage{Type: msgUpdate, Request: &req}); err != nil {
		t.Fatal(err)
	}
	back := readMessage(t, conn)
	if back.State != StateIdle {
		t.Errorf("edit after result must return to idle, got %s", back.State)
	}
}

func TestLiveSession_Errors(t *testing.T) {
	conn := dialSession(t)
	readMessage(t, conn)

	bad := ml.DefaultRequest()
	bad.Rating = 0
	if err := conn.WriteJSON(clientMessage{Type: msgPredict, Request: &bad}); err != nil {
		t.Fatal(err)
	}
	computing := readMessage(t, conn)
	if computing.State != StateComputing {
		t.Fatalf("expected computing state, got %+v", computing)
	}
	failed := readMessage(t, conn)
	if failed.Type != msgError || failed.State != StateIdle || failed.Fields["rating"] == "" {
		t.Fatalf("expected validation error, got %+v", failed)
	}

	if err := conn.WriteJSON(clientMessage{Type: "dance"}); err != nil {
		t.Fatal(err)
	}
	unknown := readMessage(t, conn)
	if unknown.Type != msgError || !strings.Contains(unknown.Error, "unknown message type") {
		t.Errorf("unexpected reply %+v", unknown)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatal(err)
	}
	malformed := readMessage(t, conn)
	if malformed.Error != "malformed message" {
		t.Errorf("unexpected reply %+v", malformed)
	}
}
