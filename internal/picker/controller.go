package picker

import (
	"context"
	"errors"
	"regexp"

	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/ipc"
	"github.com/beagle-term/beagle/internal/logging"
	"github.com/beagle-term/beagle/internal/serial"
)

// Lister enumerates ports. serial.Transport satisfies it.
type Lister interface {
	ListPorts(ctx context.Context) ([]serial.PortDescriptor, error)
}

// View renders the picker. Calls arrive on the controller's loop and must
// not block.
type View interface {
	ShowScanning()
	ShowPorts(ports []serial.PortDescriptor, err error)
	ShowTerminalInfo(info ipc.TerminalInfo)
	// Dismiss closes the picker's own surface.
	Dismiss()
}

// Config wires a Controller to its surface.
type Config struct {
	Loop    *eventloop.Loop
	Window  ipc.FrameWindow
	Resolve ipc.Resolver
	Lister  Lister
	View    View

	// Exclude hides matching port names. Nil means serial.DefaultExcludePattern.
	Exclude *regexp.Regexp

	Observer ipc.DispatchObserver
	Logger   *zap.Logger
}

// Controller is the picker side of the channel. It lists ports and reports
// the user's choice to the host; it never opens a port itself.
type Controller struct {
	cfg       Config
	logger    *zap.Logger
	responder *ipc.Responder

	info     ipc.TerminalInfo
	ports    []serial.PortDescriptor
	scan     uint64
	finished bool
}

// New builds a controller. Methods must be called on cfg.Loop.
func New(cfg Config) (*Controller, error) {
	if cfg.Loop == nil || cfg.Window == nil || cfg.Lister == nil || cfg.View == nil {
		return nil, errors.New("picker: controller needs a loop, a window, a lister and a view")
	}
	if cfg.Exclude == nil {
		cfg.Exclude = regexp.MustCompile(serial.DefaultExcludePattern)
	}

	c := &Controller{cfg: cfg, logger: logging.Or(cfg.Logger)}

	opts := []ipc.DispatcherOption{ipc.WithLogger(c.logger)}
	if cfg.Observer != nil {
		opts = append(opts, ipc.WithObserver(cfg.Observer))
	}
	table, err := ipc.NewDispatcher(ipc.ToPicker, ipc.Table{
		ipc.KindTerminalInfo: c.onTerminalInfo,
	}, opts...)
	if err != nil {
		return nil, err
	}

	c.responder, err = ipc.NewResponder(ipc.ResponderConfig{
		Window:     cfg.Window,
		Resolve:    cfg.Resolve,
		Dispatcher: table,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Load announces the picker to its creator and starts the first scan.
func (c *Controller) Load() error {
	c.Refresh()
	return c.responder.Load()
}

// HandleWindowMessage feeds a bootstrap envelope from the creator.
func (c *Controller) HandleWindowMessage(env ipc.Envelope) {
	c.responder.HandleWindowMessage(env)
}

// Responder exposes the handshake state.
func (c *Controller) Responder() *ipc.Responder {
	return c.responder
}

// TerminalInfo returns the last terminal-info received.
func (c *Controller) TerminalInfo() ipc.TerminalInfo {
	return c.info
}

// Ports returns the result of the last completed scan.
func (c *Controller) Ports() []serial.PortDescriptor {
	return c.ports
}

// Finished reports whether Confirm or Cancel has run.
func (c *Controller) Finished() bool {
	return c.finished
}

// Refresh enumerates ports again. Results of an older scan that finish
// late are discarded.
func (c *Controller) Refresh() {
	if c.finished {
		return
	}
	c.scan++
	scan := c.scan
	c.cfg.View.ShowScanning()

	lister := c.cfg.Lister
	go func() {
		ports, err := lister.ListPorts(context.Background())
		c.cfg.Loop.Post(func() { c.scanned(scan, ports, err) })
	}()
}

func (c *Controller) scanned(scan uint64, ports []serial.PortDescriptor, err error) {
	if scan != c.scan || c.finished {
		return
	}
	if err != nil {
		c.logger.Warn("Failed to list ports", zap.Error(err))
		c.ports = nil
		c.cfg.View.ShowPorts(nil, err)
		return
	}
	c.ports = serial.FilterPorts(ports, c.cfg.Exclude)
	c.logger.Debug("Ports listed",
		zap.Int("found", len(ports)),
		zap.Int("shown", len(c.ports)),
	)
	c.cfg.View.ShowPorts(c.ports, nil)
}

// Confirm sends the choice to the host and closes the picker. Only the
// first successful Confirm has any effect.
func (c *Controller) Confirm(portName string, baudRate int) error {
	if c.finished {
		c.logger.Debug("Picker already finished, ignoring confirm", zap.String("port", portName))
		return nil
	}
	msg := ipc.ConnectToProfile{PortName: portName, BaudRate: baudRate}.Message()
	if err := c.responder.Post(msg); err != nil {
		return err
	}
	c.finished = true
	c.logger.Info("Port selected", zap.String("port", portName), zap.Int("baud", baudRate))
	c.cfg.View.Dismiss()
	return nil
}

// Cancel closes the picker without choosing.
func (c *Controller) Cancel() {
	if c.finished {
		return
	}
	c.finished = true
	c.logger.Debug("Picker cancelled")
	c.cfg.View.Dismiss()
}

// Close releases the channel.
func (c *Controller) Close() error {
	c.finished = true
	return c.responder.Close()
}

func (c *Controller) onTerminalInfo(args ...any) {
	info, err := ipc.ParseTerminalInfo(args)
	if err != nil {
		c.logger.Warn("Ignoring terminal-info", zap.Error(err))
		return
	}
	c.info = info
	c.cfg.View.ShowTerminalInfo(info)
}
