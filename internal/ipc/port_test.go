package ipc

import (
	"errors"
	"testing"

	"github.com/beagle-term/beagle/internal/eventloop"
)

func names(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Name
	}
	return out
}

func equalNames(got []Message, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i].Name != want[i] {
			return false
		}
	}
	return true
}

func TestPipeDeliversInOrder(t *testing.T) {
	loop := eventloop.New()
	a, b := NewPipe(loop)

	var got []Message
	b.Start(func(m Message) { got = append(got, m) })

	for _, n := range []string{"A", "B", "C"} {
		if err := a.Post(Message{Name: n}); err != nil {
			t.Fatalf("Post(%s) error = %v", n, err)
		}
	}
	if len(got) != 0 {
		t.Fatalf("delivered %v before the loop ran", names(got))
	}

	loop.RunPending()

	if !equalNames(got, "A", "B", "C") {
		t.Errorf("delivered %v, want [A B C]", names(got))
	}
}

func TestPipeHoldsUntilStart(t *testing.T) {
	loop := eventloop.New()
	a, b := NewPipe(loop)

	_ = a.Post(Message{Name: "early-1"})
	_ = a.Post(Message{Name: "early-2"})
	loop.RunPending()

	var got []Message
	b.Start(func(m Message) { got = append(got, m) })
	_ = a.Post(Message{Name: "late"})
	loop.RunPending()

	if !equalNames(got, "early-1", "early-2", "late") {
		t.Errorf("delivered %v, want [early-1 early-2 late]", names(got))
	}
}

func TestPipeFirstStartWins(t *testing.T) {
	loop := eventloop.New()
	a, b := NewPipe(loop)

	first, second := 0, 0
	b.Start(func(Message) { first++ })
	b.Start(func(Message) { second++ })

	_ = a.Post(Message{Name: "x"})
	loop.RunPending()

	if first != 1 || second != 0 {
		t.Errorf("first = %d, second = %d, want 1, 0", first, second)
	}
}

func TestPipeCloseStopsBothEnds(t *testing.T) {
	loop := eventloop.New()
	a, b := NewPipe(loop)

	delivered := 0
	a.Start(func(Message) { delivered++ })
	b.Start(func(Message) { delivered++ })

	_ = a.Post(Message{Name: "in-flight"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	loop.RunPending()

	if delivered != 0 {
		t.Errorf("delivered %d messages after close, want 0", delivered)
	}
	if !a.Closed() {
		t.Error("peer end should report closed")
	}
	if err := a.Post(Message{Name: "after"}); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Post() after close error = %v, want ErrPortClosed", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestPipePostCopiesArgs(t *testing.T) {
	loop := eventloop.New()
	a, b := NewPipe(loop)

	var got Message
	b.Start(func(m Message) { got = m })

	args := []any{"before"}
	_ = a.Post(Message{Name: "x", Args: args})
	args[0] = "after"
	loop.RunPending()

	if got.Args[0] != "before" {
		t.Errorf("receiver saw %v, want the arguments as posted", got.Args[0])
	}
}

func TestLazyPortQueuesUntilAttach(t *testing.T) {
	loop := eventloop.New()
	lazy := NewLazyPort()

	var hostGot []Message
	lazy.Start(func(m Message) { hostGot = append(hostGot, m) })

	_ = lazy.Post(Message{Name: "one"})
	_ = lazy.Post(Message{Name: "two"})
	if lazy.Attached() {
		t.Fatal("Attached() = true before Attach")
	}

	near, far := NewPipe(loop)
	var farGot []Message
	far.Start(func(m Message) { farGot = append(farGot, m) })

	if err := lazy.Attach(near); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	_ = lazy.Post(Message{Name: "three"})
	_ = far.Post(Message{Name: "reply"})
	loop.RunPending()

	if !equalNames(farGot, "one", "two", "three") {
		t.Errorf("far end got %v, want [one two three]", names(farGot))
	}
	if !equalNames(hostGot, "reply") {
		t.Errorf("lazy end got %v, want [reply]", names(hostGot))
	}
	if err := lazy.Attach(near); !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("second Attach() error = %v, want ErrAlreadyAttached", err)
	}
}

func TestLazyPortAttachAfterClose(t *testing.T) {
	loop := eventloop.New()
	lazy := NewLazyPort()
	_ = lazy.Post(Message{Name: "dropped"})

	if err := lazy.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	near, _ := NewPipe(loop)
	if err := lazy.Attach(near); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Attach() after close error = %v, want ErrPortClosed", err)
	}
	if !near.Closed() {
		t.Error("late attached port should be closed")
	}
	if err := lazy.Post(Message{Name: "x"}); !errors.Is(err, ErrPortClosed) {
		t.Errorf("Post() after close error = %v, want ErrPortClosed", err)
	}
}
