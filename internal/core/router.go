package core

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pubsubcore/internal/proto"
)

// Router classifies inbound messages per session and ties the directory
// and the dispatch table together. It is shared by every transport.
type Router struct {
	dir   *Directory
	table *Table
	log   *zerolog.Logger
}

// NewRouter builds a router over dir and table.
func NewRouter(dir *Directory, table *Table, logger *zerolog.Logger) *Router {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{dir: dir, table: table, log: logger}
}

// Directory returns the membership state the router works on.
func (r *Router) Directory() *Directory { return r.dir }

// Handle registers a channel handler after all existing ones.
func (r *Router) Handle(m Matcher, h Handler) {
	r.table.Register(m, h)
}

// Connect registers a session that a transport has just accepted.
func (r *Router) Connect(s *Session) {
	r.dir.Register(s)
	r.log.Info().Str("session_id", s.ID).Str("transport", s.Transport).Msg("session connected")
}

// Disconnect removes the session from every room and announces the
// departure to its former co-members. Repeated calls are no-ops.
func (r *Router) Disconnect(s *Session) {
	s.leaveOnce.Do(func() {
		affected := r.dir.LeaveAll(s)
		name := s.DisplayName()
		r.log.Info().Str("session_id", s.ID).Str("name", name).Int("notified", len(affected)).Msg("session disconnected")
		deliver(affected, proto.NewAnnouncement(name, proto.ActionDisconnected))
	})
}

// HandleRaw parses one whole JSON document from s and routes it.
func (r *Router) HandleRaw(s *Session, raw []byte) {
	msg, err := proto.ParseInbound(raw)
	if err != nil {
		r.log.Debug().Err(err).Str("session_id", s.ID).Msg("invalid inbound json")
		s.Send(proto.NewError(proto.ErrMsgInvalidJSON))
		return
	}
	r.HandleMessage(s, msg)
}

// HandleMessage routes one classified message from s.
func (r *Router) HandleMessage(s *Session, msg proto.Inbound) {
	switch msg.Kind {
	case proto.InboundJoin:
		r.join(s, msg.Connect)
	case proto.InboundLeave:
		r.leave(s, msg.Room)
	case proto.InboundChannel:
		r.table.Dispatch(msg.Channel, s, msg)
	default:
		r.log.Debug().Str("session_id", s.ID).Msg("message without channel")
		s.Send(proto.NewError(proto.ErrMsgUnknownChannel))
	}
}

func (r *Router) join(s *Session, req proto.ConnectData) {
	if !req.Valid() {
		r.log.Debug().Str("session_id", s.ID).Msg("invalid connect message")
		s.Send(proto.NewError(proto.ErrMsgInvalidConnect))
		return
	}

	members, err := r.dir.Join(s, req.Name, req.Room)
	if err != nil {
		if !errors.Is(err, ErrSessionClosed) {
			s.Send(proto.NewError(proto.ErrMsgInvalidConnect))
		}
		return
	}
	deliver(members, proto.NewAnnouncement(req.Name, proto.ActionConnected))
}

func (r *Router) leave(s *Session, room string) {
	remaining := r.dir.Leave(s, room)
	if len(remaining) == 0 {
		return
	}
	deliver(remaining, proto.NewAnnouncement(s.DisplayName(), proto.ActionDisconnected))
}

// BroadcastAll sends msg to every connected session on every transport.
// It returns how many sessions accepted the message.
func (r *Router) BroadcastAll(msg any) int {
	return deliver(r.dir.Sessions(), msg)
}

// BroadcastRoom sends msg to the members of room as of the call.
// It returns how many sessions accepted the message.
func (r *Router) BroadcastRoom(room string, msg any) int {
	sent := deliver(r.dir.MembersOf(room), msg)
	r.log.Debug().Str("room", room).Int("sent_to", sent).Msg("room broadcast")
	return sent
}

// ListUsers serves the /command/list channel.
func (r *Router) ListUsers(s *Session, msg proto.Inbound) {
	var req proto.ListRequest
	if len(msg.Data) > 0 {
		_ = json.Unmarshal(msg.Data, &req)
	}
	s.Send(proto.UserList{Users: r.dir.NamesIn(req.Room), Room: proto.ChannelList})
}

// Chat treats the channel as a room name and relays the payload to its
// members. Messages from sessions outside the room are dropped.
func (r *Router) Chat(s *Session, msg proto.Inbound) {
	if !r.dir.Contains(msg.Channel, s) {
		r.log.Debug().Str("session_id", s.ID).Str("channel", msg.Channel).Msg("dropped message from non-member")
		return
	}
	r.BroadcastRoom(msg.Channel, proto.RoomMessage{Room: msg.Channel, Data: msg.Data})
}

// RegisterDefaults installs the built-in channels: the user list command,
// then every other channel as a chat room.
func (r *Router) RegisterDefaults() {
	r.Handle(Exact(proto.ChannelList), r.ListUsers)
	r.Handle(MustPattern(".*"), r.Chat)
}

func deliver(to []*Session, msg any) int {
	sent := 0
	for _, s := range to {
		if s.Send(msg) {
			sent++
		}
	}
	return sent
}
