package core

import "sort"

// Room groups sessions subscribed to the same channel.
type Room struct {
	Name    string
	members map[*Session]struct{}
}

// RoomInfo is a read-only view of a room for APIs.
type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// NewRoom constructs a room with no members.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		members: make(map[*Session]struct{}),
	}
}

// Add inserts a session into the room. Returns true if newly added.
func (r *Room) Add(s *Session) bool {
	if _, exists := r.members[s]; exists {
		return false
	}
	r.members[s] = struct{}{}
	return true
}

// Remove deletes a session from the room. Returns true if removed.
func (r *Room) Remove(s *Session) bool {
	if _, exists := r.members[s]; !exists {
		return false
	}
	delete(r.members, s)
	return true
}

// Has reports whether s is a member.
func (r *Room) Has(s *Session) bool {
	_, ok := r.members[s]
	return ok
}

// Members returns a snapshot of the room's sessions.
func (r *Room) Members() []*Session {
	out := make([]*Session, 0, len(r.members))
	for s := range r.members {
		out = append(out, s)
	}
	return out
}

// Names returns the distinct display names present, sorted.
func (r *Room) Names() []string {
	seen := make(map[string]struct{}, len(r.members))
	names := make([]string, 0, len(r.members))
	for s := range r.members {
		name := s.Name()
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Empty returns true if no sessions are in the room.
func (r *Room) Empty() bool {
	return len(r.members) == 0
}
