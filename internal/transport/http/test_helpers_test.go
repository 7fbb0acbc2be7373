package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pubsubcore/internal/config"
	"github.com/vovakirdan/pubsubcore/internal/core"
)

func startTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *core.Router) {
	t.Helper()

	logger := zerolog.Nop()
	router := core.NewRouter(core.NewDirectory(&logger), core.NewTable(), &logger)
	router.RegisterDefaults()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	ts := httptest.NewServer(NewEngine(router, cfg, &logger))
	t.Cleanup(ts.Close)
	return ts, router
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func writeJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readJSON(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()

	var msg map[string]any
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func expectAnnouncement(t *testing.T, ctx context.Context, conn *websocket.Conn, name, action string) {
	t.Helper()

	msg := readJSON(t, ctx, conn)
	if msg["announcement"] != true || msg["name"] != name || msg["action"] != action {
		t.Fatalf("expected %s %s announcement, got %v", name, action, msg)
	}
}
