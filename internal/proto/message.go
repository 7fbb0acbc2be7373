package proto

import (
	"encoding/json"
	"errors"
)

// InboundKind classifies a message coming from a client.
type InboundKind int

const (
	// InboundUnknown is anything that is not a join, leave or channel message.
	InboundUnknown InboundKind = iota
	// InboundJoin asks to join a room under a display name.
	InboundJoin
	// InboundLeave asks to leave a room.
	InboundLeave
	// InboundChannel publishes to a channel.
	InboundChannel
)

// Error payloads sent back to clients.
const (
	ErrMsgInvalidConnect = "Invalid connect message"
	ErrMsgUnknownChannel = "Unknown channel"
	ErrMsgInvalidJSON    = "Invalid JSON"
	ErrMsgNoRoom         = "No room specified"
	ErrMsgRateLimited    = "Rate limit exceeded"
	ErrMsgTooLarge       = "Message too large"
)

const (
	ActionConnected    = "connected"
	ActionDisconnected = "disconnected"

	// ChannelList is the built-in channel answering with the names in a room.
	ChannelList = "/command/list"
)

// ErrNotObject is returned by ParseInbound when the payload is not a JSON object.
var ErrNotObject = errors.New("inbound payload is not a JSON object")

// ConnectData is the body of a join request.
type ConnectData struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// Inbound is a classified client message.
type Inbound struct {
	Kind    InboundKind
	Connect ConnectData
	Room    string
	Channel string
	Data    json.RawMessage
}

// ParseInbound decodes raw and classifies it by the keys present.
// A malformed field value never fails the parse; it degrades the
// message to whatever the remaining keys describe.
func ParseInbound(raw []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Inbound{}, ErrNotObject
	}

	if body, ok := fields["connect"]; ok {
		in := Inbound{Kind: InboundJoin}
		_ = json.Unmarshal(body, &in.Connect)
		return in, nil
	}

	if body, ok := fields["leave_room"]; ok {
		in := Inbound{Kind: InboundLeave}
		_ = json.Unmarshal(body, &in.Room)
		return in, nil
	}

	var channel string
	if body, ok := fields["channel"]; ok {
		_ = json.Unmarshal(body, &channel)
	}
	if channel == "" {
		return Inbound{Kind: InboundUnknown}, nil
	}
	return Inbound{Kind: InboundChannel, Channel: channel, Data: fields["data"]}, nil
}

// Valid reports whether a join request carries both a name and a room.
func (c ConnectData) Valid() bool {
	return c.Name != "" && c.Room != ""
}

// Outbound messages. Each is marshaled as-is by the transports.

// Error is sent to a single client when its request cannot be served.
type Error struct {
	Error string `json:"error"`
}

// Announcement notifies room members that someone joined or left.
type Announcement struct {
	Announcement bool   `json:"announcement"`
	Name         string `json:"name"`
	Action       string `json:"action"`
}

// RoomMessage carries a channel payload relabeled with its room.
type RoomMessage struct {
	Room string          `json:"room"`
	Data json.RawMessage `json:"data"`
}

// UserList answers the /command/list channel.
type UserList struct {
	Users []string `json:"users"`
	Room  string   `json:"room"`
}

// ListRequest is the data of a /command/list request.
type ListRequest struct {
	Room string `json:"room"`
}

// NewError builds an error payload.
func NewError(msg string) Error {
	return Error{Error: msg}
}

// NewAnnouncement builds a join/leave announcement.
func NewAnnouncement(name, action string) Announcement {
	return Announcement{Announcement: true, Name: name, Action: action}
}

// Join builds the wire form of a join request, as sent by clients.
func Join(name, room string) map[string]any {
	return map[string]any{"connect": ConnectData{Name: name, Room: room}}
}

// Leave builds the wire form of a leave request.
func Leave(room string) map[string]any {
	return map[string]any{"leave_room": room}
}

// Publish builds the wire form of a channel message.
func Publish(channel string, data any) map[string]any {
	return map[string]any{"channel": channel, "data": data}
}
