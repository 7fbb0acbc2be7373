// Package client keeps a connection to a pubsubcore server alive and
// restores room membership after every reconnect.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pubsubcore/internal/core"
	"github.com/vovakirdan/pubsubcore/internal/proto"
)

// ErrNotConnected is returned by Send while no connection is live.
var ErrNotConnected = errors.New("client: not connected")

// State is the connection state of a Controller.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Membership is a room the client intends to occupy under a name.
type Membership struct {
	Name string
	Room string
}

// Message is a server payload as seen by client handlers.
type Message struct {
	Error        string          `json:"error,omitempty"`
	Announcement bool            `json:"announcement,omitempty"`
	Name         string          `json:"name,omitempty"`
	Action       string          `json:"action,omitempty"`
	Room         string          `json:"room,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Users        []string        `json:"users,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type handlerEntry struct {
	matcher core.Matcher
	fn      func(Message)
}

// Option configures a Controller.
type Option func(*Controller)

// WithBackoff replaces DefaultBackoff.
func WithBackoff(b Backoff) Option {
	return func(c *Controller) { c.backoff = b }
}

// WithLogger sets the logger used for connection events.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.log = logger
		}
	}
}

// Controller owns one logical client connection. Run drives the
// disconnected → connecting → connected cycle until its context ends.
type Controller struct {
	dialer  Dialer
	backoff Backoff
	log     *zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	// mu serializes writes and guards the fields below. It is held for the
	// whole membership replay, so nothing else is written before it ends.
	mu      sync.Mutex
	conn    Conn
	state   State
	attempt int
	desired []Membership

	hmu          sync.RWMutex
	handlers     []handlerEntry
	onMessage    func(json.RawMessage)
	onError      func(Message)
	onAnnounce   func(Message)
	onDefault    func(Message)
	onConnect    func()
	onDisconnect func(error)
}

// New creates a Controller that connects through dialer.
func New(dialer Dialer, opts ...Option) *Controller {
	nop := zerolog.Nop()
	c := &Controller{
		dialer:  dialer,
		backoff: DefaultBackoff(),
		log:     &nop,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of failed connects since the last success.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Desired returns a copy of the memberships replayed on every connect.
func (c *Controller) Desired() []Membership {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Membership(nil), c.desired...)
}

// Run connects and reconnects until ctx is done. It returns ctx.Err().
func (c *Controller) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting)
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return ctx.Err()
			}
			attempt := c.failed()
			delay := c.backoff.Delay(attempt)
			c.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("connect failed")
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		if err := c.attach(ctx, conn); err != nil {
			c.log.Warn().Err(err).Msg("membership replay failed")
			c.detach(conn, err)
		} else {
			c.log.Info().Msg("connected")
			if fn := c.connectHook(); fn != nil {
				fn()
			}
			err = c.readLoop(ctx, conn)
			c.detach(conn, err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := c.backoff.Delay(c.Attempts())
		c.log.Info().Dur("retry_in", delay).Msg("disconnected, reconnecting")
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Join records the membership and sends the join now if connected.
// While disconnected the join is deferred to the next replay.
func (c *Controller) Join(ctx context.Context, name, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	replaced := false
	for i := range c.desired {
		if c.desired[i].Room == room {
			c.desired[i].Name = name
			replaced = true
			break
		}
	}
	if !replaced {
		c.desired = append(c.desired, Membership{Name: name, Room: room})
	}

	if c.conn == nil {
		return nil
	}
	return c.conn.WriteJSON(ctx, proto.Join(name, room))
}

// Leave forgets every membership for room and sends the leave if connected.
func (c *Controller) Leave(ctx context.Context, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.desired[:0]
	for _, m := range c.desired {
		if m.Room != room {
			kept = append(kept, m)
		}
	}
	c.desired = kept

	if c.conn == nil {
		return nil
	}
	return c.conn.WriteJSON(ctx, proto.Leave(room))
}

// Send publishes data on channel.
func (c *Controller) Send(ctx context.Context, channel string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteJSON(ctx, proto.Publish(channel, data))
}

// OnMessage is called with every raw payload before classification.
func (c *Controller) OnMessage(fn func(json.RawMessage)) {
	c.hmu.Lock()
	c.onMessage = fn
	c.hmu.Unlock()
}

// OnError receives error payloads, including payloads that name no room.
func (c *Controller) OnError(fn func(Message)) {
	c.hmu.Lock()
	c.onError = fn
	c.hmu.Unlock()
}

// OnAnnounce receives join and leave announcements.
func (c *Controller) OnAnnounce(fn func(Message)) {
	c.hmu.Lock()
	c.onAnnounce = fn
	c.hmu.Unlock()
}

// Default receives room payloads that no handler matched.
func (c *Controller) Default(fn func(Message)) {
	c.hmu.Lock()
	c.onDefault = fn
	c.hmu.Unlock()
}

// OnConnect runs after each successful connect and replay.
func (c *Controller) OnConnect(fn func()) {
	c.hmu.Lock()
	c.onConnect = fn
	c.hmu.Unlock()
}

// OnDisconnect runs when a live connection is lost.
func (c *Controller) OnDisconnect(fn func(error)) {
	c.hmu.Lock()
	c.onDisconnect = fn
	c.hmu.Unlock()
}

// Handle routes payloads whose room matches m to fn. The first matching
// handler in registration order wins.
func (c *Controller) Handle(m core.Matcher, fn func(Message)) {
	c.hmu.Lock()
	c.handlers = append(c.handlers, handlerEntry{matcher: m, fn: fn})
	c.hmu.Unlock()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) failed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt++
	c.state = StateDisconnected
	return c.attempt
}

// attach replays desired memberships on conn and only then publishes it
// to Join, Leave and Send.
func (c *Controller) attach(ctx context.Context, conn Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempt = 0
	for _, m := range c.desired {
		if err := conn.WriteJSON(ctx, proto.Join(m.Name, m.Room)); err != nil {
			return fmt.Errorf("rejoin %s: %w", m.Room, err)
		}
	}
	c.conn = conn
	c.state = StateConnected
	return nil
}

func (c *Controller) detach(conn Conn, cause error) {
	c.mu.Lock()
	wasLive := c.conn == conn
	if wasLive {
		c.conn = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	_ = conn.Close()

	if !wasLive {
		return
	}
	c.hmu.RLock()
	fn := c.onDisconnect
	c.hmu.RUnlock()
	if fn != nil {
		fn(cause)
	}
}

func (c *Controller) connectHook() func() {
	c.hmu.RLock()
	defer c.hmu.RUnlock()
	return c.onConnect
}

func (c *Controller) readLoop(ctx context.Context, conn Conn) error {
	for {
		raw, err := conn.ReadJSON(ctx)
		if err != nil {
			return err
		}
		c.dispatch(raw)
	}
}

func (c *Controller) dispatch(raw json.RawMessage) {
	c.hmu.RLock()
	onMessage, onError, onAnnounce, onDefault := c.onMessage, c.onError, c.onAnnounce, c.onDefault
	handlers := c.handlers
	c.hmu.RUnlock()

	if onMessage != nil {
		onMessage(raw)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Debug().Err(err).Msg("undecodable payload")
		msg = Message{Error: proto.ErrMsgInvalidJSON}
	}
	msg.Raw = raw

	switch {
	case msg.Error != "":
		c.emit(onError, msg, "server error")
		return
	case msg.Announcement:
		c.emit(onAnnounce, msg, "announcement")
		return
	case msg.Room == "":
		c.emit(onError, Message{Error: proto.ErrMsgNoRoom, Raw: raw}, "server error")
		return
	}

	for _, h := range handlers {
		if h.matcher.Match(msg.Room) {
			h.fn(msg)
			return
		}
	}
	c.emit(onDefault, msg, "unhandled message")
}

func (c *Controller) emit(fn func(Message), msg Message, what string) {
	if fn != nil {
		fn(msg)
		return
	}
	c.log.Info().Str("room", msg.Room).Bytes("payload", msg.Raw).Msg(what)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
