package core

import "sync"

// Outbox is a bounded queue between the router and a transport's write
// loop. Send never blocks: when the queue is full or closed the message
// is dropped.
type Outbox struct {
	ch        chan any
	done      chan struct{}
	closeOnce sync.Once
}

// NewOutbox creates an outbox holding up to size pending messages.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 1
	}
	return &Outbox{
		ch:   make(chan any, size),
		done: make(chan struct{}),
	}
}

// Send queues msg. It reports false if the message was dropped.
func (o *Outbox) Send(msg any) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.ch <- msg:
		return true
	default:
		return false
	}
}

// C is drained by the transport's write loop.
func (o *Outbox) C() <-chan any { return o.ch }

// Done is closed once the outbox stops accepting messages.
func (o *Outbox) Done() <-chan struct{} { return o.done }

// Close stops accepting messages. Pending messages stay readable from C.
func (o *Outbox) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}
