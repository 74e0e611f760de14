package serial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/logging"
)

// Route sends port names starting with Prefix to Transport. An empty
// prefix matches everything.
type Route struct {
	Prefix    string
	Transport Transport
}

// MultiTransport combines transports. Open goes to the first route whose
// prefix matches; ListPorts merges every route, so one failing source does
// not hide the others.
type MultiTransport struct {
	routes []Route
	logger *zap.Logger
}

// NewMultiTransport returns a transport trying routes in order.
func NewMultiTransport(logger *zap.Logger, routes ...Route) *MultiTransport {
	return &MultiTransport{routes: routes, logger: logging.Or(logger)}
}

func (m *MultiTransport) ListPorts(ctx context.Context) ([]PortDescriptor, error) {
	var (
		all  []PortDescriptor
		errs []error
	)
	for _, r := range m.routes {
		ports, err := r.Transport.ListPorts(ctx)
		if err != nil {
			m.logger.Warn("Port enumeration failed", zap.String("prefix", r.Prefix), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		all = append(all, ports...)
	}
	if len(all) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

func (m *MultiTransport) Open(ctx context.Context, name string, opts Options) (Conn, error) {
	for _, r := range m.routes {
		if strings.HasPrefix(name, r.Prefix) {
			return r.Transport.Open(ctx, name, opts)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPort, name)
}
