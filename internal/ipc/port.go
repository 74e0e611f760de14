package ipc

import (
	"sync"

	"github.com/beagle-term/beagle/internal/eventloop"
)

// Port is one end of a duplex message channel.
//
// Messages posted on one end arrive at the other in send order. Messages
// that arrive before Start are held and delivered, in order, once Start is
// called. Close releases the channel exactly once; posting afterwards
// returns ErrPortClosed.
type Port interface {
	Post(msg Message) error
	Start(onMessage func(Message))
	Close() error
}

// pipe is the state shared by the two ends of an in-process channel.
type pipe struct {
	mu     sync.Mutex
	closed bool
}

// LocalPort is one end of an in-process channel. Deliveries are posted
// onto the loop, so handlers always run on the loop goroutine.
type LocalPort struct {
	loop *eventloop.Loop
	pipe *pipe
	peer *LocalPort

	// guarded by pipe.mu
	handler func(Message)
	pending []Message
}

// NewPipe creates an entangled pair of ports delivering on loop.
func NewPipe(loop *eventloop.Loop) (*LocalPort, *LocalPort) {
	p := &pipe{}
	a := &LocalPort{loop: loop, pipe: p}
	b := &LocalPort{loop: loop, pipe: p}
	a.peer, b.peer = b, a
	return a, b
}

// Post sends msg to the peer end.
func (p *LocalPort) Post(msg Message) error {
	p.pipe.mu.Lock()
	closed := p.pipe.closed
	p.pipe.mu.Unlock()
	if closed {
		return ErrPortClosed
	}

	msg = msg.clone()
	peer := p.peer
	if !p.loop.Post(func() { peer.receive(msg) }) {
		return ErrPortClosed
	}
	return nil
}

func (p *LocalPort) receive(msg Message) {
	p.pipe.mu.Lock()
	if p.pipe.closed {
		p.pipe.mu.Unlock()
		return
	}
	h := p.handler
	if h == nil {
		p.pending = append(p.pending, msg)
		p.pipe.mu.Unlock()
		return
	}
	p.pipe.mu.Unlock()

	h(msg)
}

// Start begins delivery to onMessage, flushing anything that arrived
// earlier. Calling Start again replaces nothing: the first handler wins.
func (p *LocalPort) Start(onMessage func(Message)) {
	p.pipe.mu.Lock()
	if p.handler != nil || p.pipe.closed {
		p.pipe.mu.Unlock()
		return
	}
	p.handler = onMessage
	pending := p.pending
	p.pending = nil
	p.pipe.mu.Unlock()

	for _, msg := range pending {
		onMessage(msg)
	}
}

// Close disentangles both ends. Undelivered messages are dropped.
func (p *LocalPort) Close() error {
	p.pipe.mu.Lock()
	defer p.pipe.mu.Unlock()
	if p.pipe.closed {
		return nil
	}
	p.pipe.closed = true
	p.pending = nil
	p.peer.pending = nil
	return nil
}

// Closed reports whether either end has been closed.
func (p *LocalPort) Closed() bool {
	p.pipe.mu.Lock()
	defer p.pipe.mu.Unlock()
	return p.pipe.closed
}
