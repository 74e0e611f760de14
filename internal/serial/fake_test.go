package serial

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/beagle-term/beagle/internal/eventloop"
)

type fakeConn struct {
	id    string
	reads chan []byte

	mu       sync.Mutex
	written  []byte
	writeErr error
	closes   int

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, reads: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case b, ok := <-c.reads:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, b), nil
	case <-c.closed:
		return 0, io.ErrClosedPipe
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.written = append(c.written, p...)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.written)
}

func (c *fakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeTransport struct {
	mu    sync.Mutex
	ports []PortDescriptor
	conns []*fakeConn
	opens []string
	err   error
	gate  chan struct{}
}

func (f *fakeTransport) ListPorts(ctx context.Context) ([]PortDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PortDescriptor, len(f.ports))
	copy(out, f.ports)
	return out, nil
}

func (f *fakeTransport) Open(ctx context.Context, name string, opts Options) (Conn, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, name)
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeConn(name)
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeTransport) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func (f *fakeTransport) Conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[i]
}

// waitFor runs the loop until cond holds.
func waitFor(t *testing.T, loop *eventloop.Loop, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		loop.RunPending()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
