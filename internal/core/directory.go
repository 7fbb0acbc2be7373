package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Directory tracks live sessions and the rooms they occupy.
// All membership mutations happen under a single lock so join, leave and
// disconnect for the same session are atomic with respect to each other.
type Directory struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	rooms    map[string]*Room
	log      *zerolog.Logger
}

// NewDirectory creates an empty directory.
func NewDirectory(logger *zerolog.Logger) *Directory {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Directory{
		sessions: make(map[*Session]struct{}),
		rooms:    make(map[string]*Room),
		log:      logger,
	}
}

// Register adds a connected session.
func (d *Directory) Register(s *Session) {
	d.mu.Lock()
	d.sessions[s] = struct{}{}
	total := len(d.sessions)
	d.mu.Unlock()
	d.log.Debug().Str("module", "core.directory").Str("session_id", s.ID).Int("total", total).Msg("session registered")
}

// Join sets the session's display name and adds it to room, creating the
// room if needed. It returns the room's members after the join. Joining a
// room the session already occupies leaves membership unchanged.
func (d *Directory) Join(s *Session, name, room string) ([]*Session, error) {
	if name == "" || room == "" {
		return nil, ErrInvalidJoin
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	s.setName(name)
	r, ok := d.rooms[room]
	if !ok {
		r = NewRoom(room)
		d.rooms[room] = r
	}
	if r.Add(s) {
		s.rooms[room] = struct{}{}
		d.log.Info().Str("module", "core.directory").Str("session_id", s.ID).Str("name", name).Str("room", room).Msg("joined room")
	}
	return r.Members(), nil
}

// Leave removes the session from room and returns the remaining members.
// Leaving a room that does not exist, or that the session is not in,
// returns an empty list.
func (d *Directory) Leave(s *Session, room string) []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[room]
	if !ok || !r.Remove(s) {
		return nil
	}
	delete(s.rooms, room)
	d.log.Info().Str("module", "core.directory").Str("session_id", s.ID).Str("room", room).Msg("left room")

	if r.Empty() {
		delete(d.rooms, room)
		return nil
	}
	return r.Members()
}

// LeaveAll removes the session from every room and from the registry. It
// returns the other members of those rooms, each listed once. Rooms left
// empty are destroyed. Later joins for the session fail with ErrSessionClosed.
func (d *Directory) LeaveAll(s *Session) []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	affected := make(map[*Session]struct{})
	for room := range s.rooms {
		r, ok := d.rooms[room]
		if !ok {
			continue
		}
		r.Remove(s)
		if r.Empty() {
			delete(d.rooms, room)
			continue
		}
		for m := range r.members {
			affected[m] = struct{}{}
		}
	}
	s.rooms = make(map[string]struct{})
	delete(d.sessions, s)
	s.closed = true

	out := make([]*Session, 0, len(affected))
	for m := range affected {
		out = append(out, m)
	}
	d.log.Debug().Str("module", "core.directory").Str("session_id", s.ID).Int("affected", len(out)).Msg("session removed from all rooms")
	return out
}

// MembersOf returns the sessions currently in room.
func (d *Directory) MembersOf(room string) []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.rooms[room]; ok {
		return r.Members()
	}
	return nil
}

// NamesIn returns the distinct display names in room, sorted.
func (d *Directory) NamesIn(room string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.rooms[room]; ok {
		return r.Names()
	}
	return []string{}
}

// Contains reports whether s is a member of room.
func (d *Directory) Contains(room string, s *Session) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[room]
	return ok && r.Has(s)
}

// RoomsOf returns the rooms s occupies, sorted.
func (d *Directory) RoomsOf(s *Session) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// Sessions returns every registered session.
func (d *Directory) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Session, 0, len(d.sessions))
	for s := range d.sessions {
		out = append(out, s)
	}
	return out
}

// Rooms lists existing rooms sorted by name.
func (d *Directory) Rooms() []RoomInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RoomInfo, 0, len(d.rooms))
	for name, r := range d.rooms {
		out = append(out, RoomInfo{Name: name, Members: len(r.members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
