package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pubsubcore/internal/config"
	"github.com/vovakirdan/pubsubcore/internal/core"
	"github.com/vovakirdan/pubsubcore/internal/proto"
	"github.com/vovakirdan/pubsubcore/internal/utils"
)

// TransportName labels sessions accepted by this package.
const TransportName = "ws"

const writeTimeout = 10 * time.Second

// WSHandler upgrades HTTP connections and bridges them to core sessions.
type WSHandler struct {
	router *core.Router
	cfg    config.Config
	log    *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(router *core.Router, cfg config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{router: router, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	outbox := core.NewOutbox(h.cfg.SendBuffer)
	session := core.NewSession(utils.NewID(), TransportName, outbox)
	h.router.Connect(session)
	defer func() {
		h.router.Disconnect(session)
		outbox.Close()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session, outbox)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	limiter := newRateLimiter(h.cfg.MessagesPerMinute, time.Minute)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("session_id", session.ID).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			h.log.Debug().Str("session_id", session.ID).Msg("ws rate limit exceeded")
			session.Send(proto.NewError(proto.ErrMsgRateLimited))
			continue
		}
		h.router.HandleRaw(session, data)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, outbox *core.Outbox) error {
	for {
		select {
		case msg := <-outbox.C():
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				h.log.Error().Err(err).Str("session_id", session.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
