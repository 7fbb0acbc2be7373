package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pubsubcore/internal/config"
	"github.com/vovakirdan/pubsubcore/internal/core"
	"github.com/vovakirdan/pubsubcore/internal/proto"
)

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func startTestServer(t *testing.T, mutate func(*config.Config)) (string, *core.Router) {
	t.Helper()

	logger := zerolog.Nop()
	router := core.NewRouter(core.NewDirectory(&logger), core.NewTable(), &logger)
	router.RegisterDefaults()

	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	srv := NewServer(router, cfg, &logger)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String(), router
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) write(t *testing.T, chunks ...string) {
	t.Helper()
	for _, chunk := range chunks {
		if _, err := c.conn.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
		// Give the server a chance to see each chunk separately.
		time.Sleep(5 * time.Millisecond)
	}
}

func (c *testClient) read(t *testing.T) map[string]any {
	t.Helper()

	if err := c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasSuffix(line, "\r\n") {
		t.Fatalf("line not CRLF terminated: %q", line)
	}
	var msg map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	return msg
}

func TestTCPJoinAndChatAcrossChunks(t *testing.T) {
	addr, _ := startTestServer(t, nil)

	alice := dial(t, addr)
	bob := dial(t, addr)

	alice.write(t, `{"connect":{"name":"al`, `ice","room":"lobby"}}`)
	if msg := alice.read(t); msg["announcement"] != true || msg["name"] != "alice" || msg["action"] != proto.ActionConnected {
		t.Fatalf("unexpected announcement: %v", msg)
	}

	bob.write(t, `{"connect":{"name":"bob","room":"lobby"}}{"channel":"lobby","data":{"name":"bob","text":"a {brace}"}}`)
	if msg := bob.read(t); msg["name"] != "bob" {
		t.Fatalf("unexpected announcement: %v", msg)
	}
	if msg := alice.read(t); msg["name"] != "bob" {
		t.Fatalf("unexpected announcement: %v", msg)
	}

	msg := alice.read(t)
	data, _ := msg["data"].(map[string]any)
	if msg["room"] != "lobby" || data["text"] != "a {brace}" {
		t.Fatalf("unexpected chat message: %v", msg)
	}
}

func TestTCPInvalidJSON(t *testing.T) {
	addr, _ := startTestServer(t, nil)
	client := dial(t, addr)

	client.write(t, `{not json}{"leave_room":"ghost"}{"channel":"/command/list","data":{"room":"ghost"}}`)

	if msg := client.read(t); msg["error"] != proto.ErrMsgInvalidJSON {
		t.Fatalf("expected invalid json error, got %v", msg)
	}
	// The bad span is skipped and later documents still route.
	msg := client.read(t)
	if msg["room"] != proto.ChannelList {
		t.Fatalf("expected user list, got %v", msg)
	}
}

func TestTCPUnbalancedQuoteDoesNotStallStream(t *testing.T) {
	addr, _ := startTestServer(t, nil)
	client := dial(t, addr)

	client.write(t, `{"a}`, `{"channel":"/command/list","data":{"room":"ghost"}}`)

	if msg := client.read(t); msg["error"] != proto.ErrMsgInvalidJSON {
		t.Fatalf("expected invalid json error, got %v", msg)
	}
	if msg := client.read(t); msg["room"] != proto.ChannelList {
		t.Fatalf("expected user list, got %v", msg)
	}
}

func TestTCPDisconnectAnnounces(t *testing.T) {
	addr, router := startTestServer(t, nil)

	alice := dial(t, addr)
	bob := dial(t, addr)

	alice.write(t, `{"connect":{"name":"alice","room":"lobby"}}`)
	alice.read(t)
	bob.write(t, `{"connect":{"name":"bob","room":"lobby"}}`)
	bob.read(t)
	alice.read(t)

	bob.conn.Close()

	msg := alice.read(t)
	if msg["name"] != "bob" || msg["action"] != proto.ActionDisconnected {
		t.Fatalf("unexpected announcement: %v", msg)
	}
	if names := router.Directory().NamesIn("lobby"); len(names) != 1 || names[0] != "alice" {
		t.Fatalf("unexpected names after disconnect: %v", names)
	}
}

func TestTCPOversizeFrame(t *testing.T) {
	addr, _ := startTestServer(t, func(cfg *config.Config) {
		cfg.MaxMessageBytes = 32
	})
	client := dial(t, addr)

	client.write(t, `{"channel":"lobby","data":{"text":"`+strings.Repeat("x", 64))
	if msg := client.read(t); msg["error"] != proto.ErrMsgTooLarge {
		t.Fatalf("expected too large error, got %v", msg)
	}

	client.write(t, `{"leave_room":"x"}{"nope":1}`)
	if msg := client.read(t); msg["error"] != proto.ErrMsgUnknownChannel {
		t.Fatalf("connection should keep working, got %v", msg)
	}
}
