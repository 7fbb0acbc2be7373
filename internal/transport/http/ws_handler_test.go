package http

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/pubsubcore/internal/config"
	"github.com/vovakirdan/pubsubcore/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketJoinChatAndDisconnect(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dialWS(t, ctx, ts)
	bob := dialWS(t, ctx, ts)

	writeJSON(t, ctx, alice, proto.Join("alice", "lobby"))
	expectAnnouncement(t, ctx, alice, "alice", proto.ActionConnected)

	writeJSON(t, ctx, bob, proto.Join("bob", "lobby"))
	expectAnnouncement(t, ctx, bob, "bob", proto.ActionConnected)
	expectAnnouncement(t, ctx, alice, "bob", proto.ActionConnected)

	writeJSON(t, ctx, alice, proto.Publish("lobby", map[string]string{"name": "alice", "text": "hi"}))

	msg := readJSON(t, ctx, bob)
	if msg["room"] != "lobby" {
		t.Fatalf("unexpected room message: %v", msg)
	}
	data, ok := msg["data"].(map[string]any)
	if !ok || data["name"] != "alice" || data["text"] != "hi" {
		t.Fatalf("unexpected data: %v", msg["data"])
	}
	// Alice is a member too, so she gets her own message back.
	if echo := readJSON(t, ctx, alice); echo["room"] != "lobby" {
		t.Fatalf("unexpected echo: %v", echo)
	}

	bob.Close(websocket.StatusNormalClosure, "bye")
	expectAnnouncement(t, ctx, alice, "bob", proto.ActionDisconnected)
}

func TestWebSocketErrors(t *testing.T) {
	ts, _ := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)

	tests := []struct {
		name string
		send string
		want string
	}{
		{name: "invalid connect", send: `{"connect":{"name":"alice"}}`, want: proto.ErrMsgInvalidConnect},
		{name: "unknown channel", send: `{"data":{}}`, want: proto.ErrMsgUnknownChannel},
		{name: "invalid json", send: `{"channel":`, want: proto.ErrMsgInvalidJSON},
	}
	for _, tt := range tests {
		if err := conn.Write(ctx, websocket.MessageText, []byte(tt.send)); err != nil {
			t.Fatalf("%s: write: %v", tt.name, err)
		}
		msg := readJSON(t, ctx, conn)
		if msg["error"] != tt.want {
			t.Fatalf("%s: got %v, want error %q", tt.name, msg, tt.want)
		}
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	ts, _ := startTestServer(t, func(cfg *config.Config) {
		cfg.MessagesPerMinute = 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)

	writeJSON(t, ctx, conn, proto.Join("alice", "lobby"))
	expectAnnouncement(t, ctx, conn, "alice", proto.ActionConnected)

	writeJSON(t, ctx, conn, proto.Join("alice", "other"))
	if msg := readJSON(t, ctx, conn); msg["error"] != proto.ErrMsgRateLimited {
		t.Fatalf("expected rate limit error, got %v", msg)
	}
}
