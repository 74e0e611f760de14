package ipc

import (
	"errors"
	"sync"
)

// ErrAlreadyAttached is returned when a LazyPort is attached twice.
var ErrAlreadyAttached = errors.New("ipc: port already attached")

// LazyPort stands in for a channel whose far end has not connected yet.
// Posts are queued and the start handler remembered until Attach supplies
// the real port. Attach must run on the same loop as Post to keep order.
type LazyPort struct {
	mu      sync.Mutex
	target  Port
	handler func(Message)
	queued  []Message
	closed  bool
	// drain keeps messages queued before Close for a late Attach.
	drain bool
}

// NewLazyPort returns an unattached port.
func NewLazyPort() *LazyPort {
	return &LazyPort{}
}

// Post forwards msg, or queues it until Attach.
func (p *LazyPort) Post(msg Message) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPortClosed
	}
	if p.target == nil {
		p.queued = append(p.queued, msg.clone())
		p.mu.Unlock()
		return nil
	}
	target := p.target
	p.mu.Unlock()

	return target.Post(msg)
}

// Start records the handler and starts the attached port, if any.
func (p *LazyPort) Start(onMessage func(Message)) {
	p.mu.Lock()
	if p.handler != nil || p.closed {
		p.mu.Unlock()
		return
	}
	p.handler = onMessage
	target := p.target
	p.mu.Unlock()

	if target != nil {
		target.Start(onMessage)
	}
}

// Attach binds the real port and flushes queued messages in order. A port
// attached after Close is closed immediately, after any drained messages.
func (p *LazyPort) Attach(target Port) error {
	p.mu.Lock()
	if p.closed {
		queued := p.queued
		p.queued = nil
		p.mu.Unlock()
		for _, msg := range queued {
			_ = target.Post(msg)
		}
		_ = target.Close()
		return ErrPortClosed
	}
	if p.target != nil {
		p.mu.Unlock()
		return ErrAlreadyAttached
	}
	p.target = target
	handler := p.handler
	queued := p.queued
	p.queued = nil
	p.mu.Unlock()

	if handler != nil {
		target.Start(handler)
	}
	for _, msg := range queued {
		if err := target.Post(msg); err != nil {
			return err
		}
	}
	return nil
}

// Attached reports whether the real port has arrived.
func (p *LazyPort) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target != nil
}

// Close closes the attached port, or makes a later Attach close it.
func (p *LazyPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	target := p.target
	if target != nil || !p.drain {
		p.queued = nil
	}
	p.mu.Unlock()

	if target != nil {
		return target.Close()
	}
	return nil
}

// abandon drops everything when the real port will never arrive.
func (p *LazyPort) abandon() {
	p.mu.Lock()
	p.drain = false
	p.mu.Unlock()
	_ = p.Close()
	p.mu.Lock()
	p.queued = nil
	p.mu.Unlock()
}
