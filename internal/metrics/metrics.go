package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "beagle"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, so callers never need to check whether metrics are on.
type Metrics struct {
	registry *prometheus.Registry

	// Channel metrics
	MessagesTotal *prometheus.CounterVec

	// Session metrics
	SessionTransitions *prometheus.CounterVec
	SessionsOpen       prometheus.Gauge
	BytesRead          prometheus.Counter
	BytesWritten       prometheus.Counter

	// Host metrics
	PickerPrompts prometheus.Counter
	ConnectsTotal *prometheus.CounterVec
}

// New creates metrics on a private registry, plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_messages_total",
				Help:      "Messages dispatched on the picker channel",
			},
			[]string{"side", "name", "handled"},
		),

		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_transitions_total",
				Help:      "Serial session state transitions",
			},
			[]string{"from", "to"},
		),
		SessionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_open",
				Help:      "Serial sessions currently open",
			},
		),
		BytesRead: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_read_bytes_total",
				Help:      "Bytes received from devices",
			},
		),
		BytesWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "device_written_bytes_total",
				Help:      "Bytes sent to devices",
			},
		),

		PickerPrompts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "picker_prompts_total",
				Help:      "Times the port picker was shown",
			},
		),
		ConnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connects_total",
				Help:      "Connection attempts by outcome",
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the underlying registry, for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// MessageDispatched records one dispatched channel message.
func (m *Metrics) MessageDispatched(side, name string, handled bool) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(side, name, strconv.FormatBool(handled)).Inc()
}

// SessionTransition records a session state change.
func (m *Metrics) SessionTransition(from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to).Inc()
	switch {
	case to == "open":
		m.SessionsOpen.Inc()
	case from == "open":
		m.SessionsOpen.Dec()
	}
}

// RecordRead records bytes received from a device.
func (m *Metrics) RecordRead(n int) {
	if m == nil {
		return
	}
	m.BytesRead.Add(float64(n))
}

// RecordWritten records bytes sent to a device.
func (m *Metrics) RecordWritten(n int) {
	if m == nil {
		return
	}
	m.BytesWritten.Add(float64(n))
}

// IncPickerPrompts counts one picker prompt.
func (m *Metrics) IncPickerPrompts() {
	if m == nil {
		return
	}
	m.PickerPrompts.Inc()
}

// RecordConnect counts a connection attempt outcome ("ok", "failed",
// "rejected").
func (m *Metrics) RecordConnect(result string) {
	if m == nil {
		return
	}
	m.ConnectsTotal.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (m *Metrics) ServeListener(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SessionObserver adapts m to the serial package's observer interface.
func (m *Metrics) SessionObserver() SessionObserver {
	return SessionObserver{m: m}
}

// SessionObserver forwards session activity to Metrics.
type SessionObserver struct {
	m *Metrics
}

func (o SessionObserver) SessionTransition(from, to string) { o.m.SessionTransition(from, to) }
func (o SessionObserver) BytesRead(n int)                   { o.m.RecordRead(n) }
func (o SessionObserver) BytesWritten(n int)                { o.m.RecordWritten(n) }
