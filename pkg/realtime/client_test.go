package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTestServer(t *testing.T, handler func(*websocket.Conn)) *Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		handler(ws)
	}))
	t.Cleanup(srv.Close)

	d := NewDialer(Config{APIKey: "sk-test", BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEventsArriveInOrderAndSkipMalformed(t *testing.T) {
	conn := dialTestServer(t, func(ws *websocket.Conn) {
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.updated"}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"response.audio.delta","delta":"AAAA"}`))
	})

	want := []string{TypeSessionUpdated, TypeAudioDelta}
	for i, typ := range want {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				t.Fatalf("events closed before event %d", i)
			}
			if ev.Type != typ {
				t.Fatalf("event %d: expected %q, got %q", i, typ, ev.Type)
			}
			if typ == TypeAudioDelta && ev.Delta != "AAAA" {
				t.Fatalf("expected delta payload, got %q", ev.Delta)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestEventsChannelClosesOnDisconnect(t *testing.T) {
	conn := dialTestServer(t, func(ws *websocket.Conn) {
		ws.Close()
	})

	select {
	case _, ok := <-conn.Events():
		if ok {
			t.Fatalf("expected closed channel, got event")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for close")
	}
	if conn.IsOpen() {
		t.Fatalf("expected connection marked not open after disconnect")
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	conn := dialTestServer(t, func(ws *websocket.Conn) {
		// Keep the server side up so only the client close matters.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := conn.Send(AppendAudio("AAAA")); err != nil {
		t.Fatalf("expected dropped send, got error: %v", err)
	}
}
