package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/pubsubcore/internal/framing"
)

// Conn is one live connection to the server.
type Conn interface {
	WriteJSON(ctx context.Context, v any) error
	ReadJSON(ctx context.Context) (json.RawMessage, error)
	Close() error
}

// Dialer opens connections to the server.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// WSDialer connects over the WebSocket transport.
type WSDialer struct {
	URL     string
	Options *websocket.DialOptions
}

// Dial opens a WebSocket connection to d.URL.
func (d WSDialer) Dial(ctx context.Context) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, d.URL, d.Options)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteJSON(ctx context.Context, v any) error {
	return wsjson.Write(ctx, c.conn, v)
}

func (c *wsConn) ReadJSON(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := wsjson.Read(ctx, c.conn, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// TCPDialer connects over the raw byte-stream transport.
type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

// Dial opens a TCP connection to d.Addr.
func (d TCPDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Addr, err)
	}
	return &tcpConn{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// tcpConn writes framed documents and reads the server's CRLF lines.
type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (c *tcpConn) WriteJSON(ctx context.Context, v any) error {
	data, err := framing.Encode(v)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	_, err = c.conn.Write(data)
	return err
}

func (c *tcpConn) ReadJSON(ctx context.Context) (json.RawMessage, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		line = trimCRLF(line)
		if len(line) == 0 {
			continue
		}
		return json.RawMessage(line), nil
	}
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func trimCRLF(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
