package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics

	m.MessageDispatched("host", "connectToProfile", true)
	m.SessionTransition("idle", "opening")
	m.RecordRead(10)
	m.RecordWritten(10)
	m.IncPickerPrompts()
	m.RecordConnect("ok")
	m.SessionObserver().BytesRead(1)

	if m.Registry() != nil {
		t.Error("Registry() on nil metrics should be nil")
	}
}

func TestMessageDispatched(t *testing.T) {
	m := New()

	m.MessageDispatched("host", "connectToProfile", true)
	m.MessageDispatched("host", "bogus", false)
	m.MessageDispatched("host", "bogus", false)

	if got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues("host", "connectToProfile", "true")); got != 1 {
		t.Errorf("handled count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues("host", "bogus", "false")); got != 2 {
		t.Errorf("unhandled count = %v, want 2", got)
	}
}

func TestSessionsOpenGauge(t *testing.T) {
	m := New()
	obs := m.SessionObserver()

	obs.SessionTransition("idle", "opening")
	obs.SessionTransition("opening", "open")
	if got := testutil.ToFloat64(m.SessionsOpen); got != 1 {
		t.Fatalf("SessionsOpen = %v, want 1", got)
	}

	obs.SessionTransition("open", "failed")
	if got := testutil.ToFloat64(m.SessionsOpen); got != 0 {
		t.Errorf("SessionsOpen = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.SessionTransitions.WithLabelValues("open", "failed")); got != 1 {
		t.Errorf("open->failed transitions = %v, want 1", got)
	}
}

func TestByteCounters(t *testing.T) {
	m := New()
	obs := m.SessionObserver()

	obs.BytesRead(5)
	obs.BytesRead(7)
	obs.BytesWritten(3)

	if got := testutil.ToFloat64(m.BytesRead); got != 12 {
		t.Errorf("BytesRead = %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.BytesWritten); got != 3 {
		t.Errorf("BytesWritten = %v, want 3", got)
	}
}

func TestInstancesDoNotCollide(t *testing.T) {
	a, b := New(), New()
	a.IncPickerPrompts()

	if got := testutil.ToFloat64(b.PickerPrompts); got != 0 {
		t.Errorf("second instance saw %v prompts, want 0", got)
	}
}

func TestServeListener(t *testing.T) {
	m := New()
	m.RecordConnect("ok")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- m.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), `beagle_connects_total{result="ok"} 1`) {
		t.Errorf("exposition missing connects counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("ServeListener() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
