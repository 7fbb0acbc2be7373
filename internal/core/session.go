package core

import "sync"

// AnonymousName labels sessions that never joined a room.
const AnonymousName = "anonymous"

// Sender delivers one outbound message to a connected client.
// Implementations are provided by the transports and must not block.
type Sender interface {
	Send(msg any) bool
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(msg any) bool

// Send calls f(msg).
func (f SenderFunc) Send(msg any) bool { return f(msg) }

// Session is a connected client as seen by the core layer, independent of transport.
type Session struct {
	ID        string
	Transport string

	sender Sender

	mu   sync.RWMutex
	name string

	// guarded by Directory.mu
	rooms  map[string]struct{}
	closed bool

	leaveOnce sync.Once
}

// NewSession constructs a session that delivers through sender.
func NewSession(id, transport string, sender Sender) *Session {
	return &Session{
		ID:        id,
		Transport: transport,
		sender:    sender,
		rooms:     make(map[string]struct{}),
	}
}

// Name returns the display name set by the last successful join, if any.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// DisplayName is Name, or AnonymousName when the session never joined.
func (s *Session) DisplayName() string {
	if name := s.Name(); name != "" {
		return name
	}
	return AnonymousName
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// Send delivers msg to the client. It reports false if the message was dropped.
func (s *Session) Send(msg any) bool {
	if s.sender == nil {
		return false
	}
	return s.sender.Send(msg)
}
