package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pubsubcore/internal/client"
	"github.com/vovakirdan/pubsubcore/internal/config"
	"github.com/vovakirdan/pubsubcore/internal/core"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startApp(t *testing.T) (*App, config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = freeAddr(t)
	cfg.TCPAddr = freeAddr(t)
	cfg.ShutdownTimeout = time.Second

	logger := zerolog.Nop()
	a := New(cfg, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("app did not stop")
		}
	})

	waitUntil(t, "http health", func() bool {
		resp, err := stdhttp.Get("http://" + cfg.Addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == stdhttp.StatusOK
	})
	return a, cfg
}

func runClient(t *testing.T, c *client.Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("client Run returned %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("client did not stop")
		}
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = freeAddr(t)
	cfg.TCPAddr = ""
	cfg.ShutdownTimeout = time.Second

	a := New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWebSocketAndTCPClientsShareRooms(t *testing.T) {
	a, cfg := startApp(t)
	ctx := context.Background()

	wsClient := client.New(client.WSDialer{URL: "ws://" + cfg.Addr + "/ws"})
	tcpClient := client.New(client.TCPDialer{Addr: cfg.TCPAddr, Timeout: time.Second})

	received := make(chan client.Message, 4)
	tcpClient.Handle(core.Exact("lobby"), func(m client.Message) { received <- m })

	if err := wsClient.Join(ctx, "web", "lobby"); err != nil {
		t.Fatalf("ws join: %v", err)
	}
	if err := tcpClient.Join(ctx, "term", "lobby"); err != nil {
		t.Fatalf("tcp join: %v", err)
	}
	runClient(t, wsClient)
	runClient(t, tcpClient)

	dir := a.Router().Directory()
	waitUntil(t, "both clients in lobby", func() bool {
		return len(dir.NamesIn("lobby")) == 2
	})

	if err := wsClient.Send(ctx, "lobby", map[string]string{"text": "hi {there}"}); err != nil {
		t.Fatalf("ws send: %v", err)
	}

	select {
	case m := <-received:
		var data map[string]string
		if err := json.Unmarshal(m.Data, &data); err != nil {
			t.Fatalf("decode data %s: %v", m.Data, err)
		}
		if m.Room != "lobby" || data["text"] != "hi {there}" {
			t.Fatalf("tcp client got %+v", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tcp client did not receive the ws message")
	}

	names := dir.NamesIn("lobby")
	if len(names) != 2 || names[0] != "term" || names[1] != "web" {
		t.Fatalf("names = %v, want [term web]", names)
	}
}
