package core

import (
	"sync"
	"testing"

	"github.com/vovakirdan/pubsubcore/internal/proto"
)

// recorder is a Sender that keeps every message it is given.
type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) Send(msg any) bool {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return true
}

func (r *recorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

func newTestSession(id string) (*Session, *recorder) {
	rec := &recorder{}
	return NewSession(id, "test", rec), rec
}

func newTestRouter() *Router {
	r := NewRouter(NewDirectory(nil), NewTable(), nil)
	r.RegisterDefaults()
	return r
}

func mustSingle[T any](t *testing.T, rec *recorder) T {
	t.Helper()

	msgs := rec.all()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one message, got %d: %+v", len(msgs), msgs)
	}
	v, ok := msgs[0].(T)
	if !ok {
		t.Fatalf("unexpected message type %T: %+v", msgs[0], msgs[0])
	}
	return v
}

func announcements(rec *recorder) []proto.Announcement {
	var out []proto.Announcement
	for _, m := range rec.all() {
		if a, ok := m.(proto.Announcement); ok {
			out = append(out, a)
		}
	}
	return out
}

func sessionIDs(sessions []*Session) map[string]bool {
	out := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		out[s.ID] = true
	}
	return out
}
