package core

import (
	"fmt"
	"sync"

	"github.com/vovakirdan/pubsubcore/internal/proto"
)

// Handler serves one channel message for the session that sent it.
type Handler func(s *Session, msg proto.Inbound)

type registration struct {
	matcher Matcher
	handler Handler
}

// Table is an ordered list of channel handlers. The first registration
// whose matcher accepts a channel serves it.
type Table struct {
	mu      sync.RWMutex
	entries []registration
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{}
}

// Register appends a handler. It is only reached for channels no earlier
// registration accepts.
func (t *Table) Register(m Matcher, h Handler) {
	t.mu.Lock()
	t.entries = append(t.entries, registration{matcher: m, handler: h})
	t.mu.Unlock()
}

// Lookup returns the handler for channel, or false if none matches.
func (t *Table) Lookup(channel string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.matcher.Match(channel) {
			return e.handler, true
		}
	}
	return nil, false
}

// Dispatch runs the handler for channel on the caller's goroutine. With no
// matching handler the session gets an error naming the channel.
func (t *Table) Dispatch(channel string, s *Session, msg proto.Inbound) {
	h, ok := t.Lookup(channel)
	if !ok {
		s.Send(proto.NewError(fmt.Sprintf("No handler for channel %q", channel)))
		return
	}
	h(s, msg)
}
