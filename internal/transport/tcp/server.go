// Package tcp serves the raw byte-stream transport: clients write
// brace-delimited JSON documents and read CRLF-terminated JSON lines.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shazow/rateio"

	"github.com/vovakirdan/pubsubcore/internal/config"
	"github.com/vovakirdan/pubsubcore/internal/core"
	"github.com/vovakirdan/pubsubcore/internal/framing"
	"github.com/vovakirdan/pubsubcore/internal/proto"
	"github.com/vovakirdan/pubsubcore/internal/utils"
)

// TransportName labels sessions accepted by this package.
const TransportName = "tcp"

const (
	readChunk    = 4096
	writeTimeout = 10 * time.Second
)

// Server accepts raw TCP connections and bridges them to core sessions.
type Server struct {
	router *core.Router
	cfg    config.Config
	log    *zerolog.Logger

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewServer builds a TCP transport over router.
func NewServer(router *core.Router, cfg config.Config, logger *zerolog.Logger) *Server {
	return &Server{
		router: router,
		cfg:    cfg,
		log:    logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on the configured TCP address and serves until
// ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.TCPAddr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("listen tcp %s: %w", s.cfg.TCPAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then closes every
// open connection and waits for their goroutines to exit.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Msg("tcp transport listening")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
			s.closeAll()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.closeAll()
			s.wg.Wait()
			return err
		}

		if !s.track(conn) {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	if s.cfg.TCPReadBytesPerSecond > 0 {
		conn = ReadLimitConn(conn, rateio.NewSimpleLimiter(s.cfg.TCPReadBytesPerSecond, time.Second))
	}

	outbox := core.NewOutbox(s.cfg.SendBuffer)
	session := core.NewSession(utils.NewID(), TransportName, outbox)
	s.router.Connect(session)
	s.log.Debug().Str("session_id", session.ID).Str("remote", remote).Msg("tcp connection accepted")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn, session, outbox)
	}()

	err := s.readLoop(conn, session)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		s.log.Warn().Err(err).Str("session_id", session.ID).Msg("tcp connection closed with error")
	}

	s.router.Disconnect(session)
	outbox.Close()
	conn.Close()
	<-writerDone
}

func (s *Server) readLoop(conn net.Conn, session *core.Session) error {
	dec := framing.NewDecoder(int(s.cfg.MaxMessageBytes))
	buf := make([]byte, readChunk)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			s.drain(dec, session)
		}
		if err != nil {
			return err
		}
	}
}

// drain routes every complete document currently buffered.
func (s *Server) drain(dec *framing.Decoder, session *core.Session) {
	for {
		doc, err := dec.Next()
		switch {
		case err == nil:
			s.router.HandleRaw(session, doc)
		case errors.Is(err, framing.ErrIncomplete):
			return
		case errors.Is(err, framing.ErrInvalidJSON):
			s.log.Debug().Str("session_id", session.ID).Msg("invalid json frame")
			session.Send(proto.NewError(proto.ErrMsgInvalidJSON))
		case errors.Is(err, framing.ErrFrameTooLarge):
			s.log.Debug().Str("session_id", session.ID).Msg("frame too large")
			session.Send(proto.NewError(proto.ErrMsgTooLarge))
			return
		}
	}
}

func (s *Server) writeLoop(conn net.Conn, session *core.Session, outbox *core.Outbox) {
	for {
		select {
		case msg := <-outbox.C():
			data, err := framing.Encode(msg)
			if err != nil {
				s.log.Error().Err(err).Str("session_id", session.ID).Msg("encode tcp message")
				continue
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if _, err := conn.Write(data); err != nil {
				s.log.Debug().Err(err).Str("session_id", session.ID).Msg("write tcp message")
				conn.Close()
				return
			}
		case <-outbox.Done():
			return
		}
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	for conn := range s.conns {
		conn.Close()
	}
}
