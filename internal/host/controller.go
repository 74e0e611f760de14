package host

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/i18n"
	"github.com/beagle-term/beagle/internal/ipc"
	"github.com/beagle-term/beagle/internal/logging"
	"github.com/beagle-term/beagle/internal/metrics"
	"github.com/beagle-term/beagle/internal/serial"
	"github.com/beagle-term/beagle/internal/version"
)

// Connect outcomes recorded in metrics.
const (
	resultOK       = "ok"
	resultFailed   = "failed"
	resultRejected = "rejected"
)

// Target is a port chosen before the terminal starts.
type Target struct {
	Port     string
	BaudRate int
}

// Config wires a Controller to the terminal, the transport and the picker.
type Config struct {
	Loop      *eventloop.Loop
	IO        IO
	Surfaces  SurfaceFactory
	Transport serial.Transport

	// Grace bounds the wait for the picker's init-ok.
	Grace          time.Duration
	ReadBufferSize int
	// Term is reported to the picker in terminal-info.
	Term string

	// Target skips the first prompt when set.
	Target *Target

	Catalog *i18n.Catalog
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	// OnConnected, when set, is told about every port that opened.
	OnConnected func(port string, baudRate int)

	// OnExit is called exactly once with the exit status.
	OnExit func(code int)
}

// Controller owns the terminal side: the picker prompt, the live serial
// session and the exit path. All methods run on cfg.Loop.
type Controller struct {
	cfg     Config
	logger  *zap.Logger
	catalog *i18n.Catalog
	table   *ipc.Dispatcher
	ctx     context.Context

	surface   Surface
	initiator *ipc.Initiator
	session   *serial.Session
	prompts   int
	exited    bool
}

// New validates cfg and builds the host's dispatch table.
func New(cfg Config) (*Controller, error) {
	if cfg.Loop == nil || cfg.IO == nil || cfg.Surfaces == nil || cfg.Transport == nil {
		return nil, errors.New("host: controller needs a loop, an IO, a surface factory and a transport")
	}
	if cfg.OnExit == nil {
		cfg.OnExit = func(int) {}
	}

	c := &Controller{
		cfg:     cfg,
		logger:  logging.Or(cfg.Logger),
		catalog: cfg.Catalog,
		ctx:     context.Background(),
	}
	if c.catalog == nil {
		c.catalog = i18n.Default()
	}

	opts := []ipc.DispatcherOption{ipc.WithLogger(c.logger)}
	if cfg.Metrics != nil {
		opts = append(opts, ipc.WithObserver(cfg.Metrics))
	}
	table, err := ipc.NewDispatcher(ipc.ToHost, ipc.Table{
		ipc.KindConnectToProfile: c.onConnectToProfile,
	}, opts...)
	if err != nil {
		return nil, err
	}
	c.table = table
	return c, nil
}

// PromptCount is the number of picker surfaces shown so far.
func (c *Controller) PromptCount() int {
	return c.prompts
}

// Session returns the current session, or nil.
func (c *Controller) Session() *serial.Session {
	return c.session
}

// Exited reports whether the exit callback has run.
func (c *Controller) Exited() bool {
	return c.exited
}

// Run binds the terminal, prints the welcome banner and either connects to
// the configured target or prompts for one. ctx bounds port opens.
func (c *Controller) Run(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
	loop := c.cfg.Loop
	c.cfg.IO.Bind(
		func(data []byte) { loop.Post(func() { c.onKeystroke(data) }) },
		func(w, h int) { loop.Post(func() { c.onResize(w, h) }) },
	)

	w, h := c.cfg.IO.Size()
	c.onResize(w, h)

	product := lipgloss.NewStyle().Bold(true).Render(version.Product)
	c.cfg.IO.Println(c.catalog.Get("WELCOME_VERSION", product, version.Channel))
	c.cfg.IO.Println(c.catalog.Get("WELCOME_HINT"))

	if t := c.cfg.Target; t != nil && t.Port != "" {
		c.connect(t.Port, t.BaudRate)
		return
	}
	c.prompt()
}

// Exit tears everything down and reports code. Only the first call has any
// effect.
func (c *Controller) Exit(code int) {
	if c.exited {
		return
	}
	c.exited = true
	c.closeSession()
	c.closePicker()
	c.logger.Info("Terminal exiting", zap.Int("code", code))
	c.cfg.OnExit(code)
}

// Unload is the terminal going away underneath the controller.
func (c *Controller) Unload() {
	c.Exit(0)
}

func (c *Controller) onKeystroke(data []byte) {
	c.logger.Debug("[sendString]", zap.Int("bytes", len(data)), zap.ByteString("data", data))
	if c.session != nil {
		c.session.Write(data)
	}
}

// onResize records the geometry. Serial ports have no notion of it.
func (c *Controller) onResize(w, h int) {
	c.logger.Debug("Terminal resized", zap.Int("width", w), zap.Int("height", h))
}

func (c *Controller) terminalInfo() ipc.TerminalInfo {
	w, h := c.cfg.IO.Size()
	return ipc.TerminalInfo{
		Width:           w,
		Height:          h,
		Term:            c.cfg.Term,
		AcceptLanguages: []string{c.catalog.Language()},
	}
}

// prompt shows a fresh picker surface.
func (c *Controller) prompt() {
	if c.exited {
		return
	}
	c.closePicker()

	surface, err := c.cfg.Surfaces()
	if err != nil {
		c.fatal(err)
		return
	}

	initiator, err := ipc.NewInitiator(ipc.InitiatorConfig{
		Loop:       c.cfg.Loop,
		Window:     surface,
		Dispatcher: c.table,
		Grace:      c.cfg.Grace,
		Info:       c.terminalInfo,
		OnReady:    func() { c.logger.Debug("Picker ready") },
		Logger:     c.logger,
	})
	if err != nil {
		_ = surface.Close()
		c.fatal(err)
		return
	}

	c.surface = surface
	c.initiator = initiator
	surface.SetWindowHandler(initiator.HandleWindowMessage)
	surface.OnDismiss(func() { c.onPickerDismissed(surface) })

	if err := surface.Show(); err != nil {
		c.fatal(err)
		return
	}
	c.prompts++
	c.cfg.Metrics.IncPickerPrompts()
	c.logger.Debug("Picker shown", zap.Int("prompt", c.prompts))
}

func (c *Controller) fatal(err error) {
	c.logger.Error("Failed to create picker surface", zap.Error(err))
	c.cfg.IO.Println(c.catalog.Get("PICKER_UNAVAILABLE", err.Error()))
	c.Exit(1)
}

func (c *Controller) closePicker() {
	if c.initiator != nil {
		_ = c.initiator.Close()
		c.initiator = nil
	}
	if c.surface != nil {
		s := c.surface
		c.surface = nil
		if err := s.Close(); err != nil {
			c.logger.Debug("Error closing picker surface", zap.Error(err))
		}
	}
}

func (c *Controller) onPickerDismissed(s Surface) {
	if s != c.surface || c.exited {
		return
	}
	c.surface = nil
	c.logger.Info("Picker dismissed without a choice")
	c.Exit(0)
}

func (c *Controller) onConnectToProfile(args ...any) {
	c.closePicker()

	req, err := ipc.ParseConnectToProfile(args)
	if err != nil {
		c.logger.Warn("Rejected connection request", zap.Error(err))
		c.cfg.IO.Println(c.catalog.Get("CONNECT_REJECTED", err.Error()))
		c.cfg.Metrics.RecordConnect(resultRejected)
		c.prompt()
		return
	}
	c.connect(req.PortName, req.BaudRate)
}

// connect replaces the current session with one for port.
func (c *Controller) connect(port string, baud int) {
	if c.exited {
		return
	}
	c.closeSession()

	var session *serial.Session
	cfg := serial.Config{
		Loop:           c.cfg.Loop,
		Transport:      c.cfg.Transport,
		ReadBufferSize: c.cfg.ReadBufferSize,
		OnData:         c.onData,
		OnDrop:         func(err error) { c.onDrop(session, err) },
		Logger:         c.logger,
	}
	if c.cfg.Metrics != nil {
		cfg.Observer = c.cfg.Metrics.SessionObserver()
	}

	session, err := serial.NewSession(cfg)
	if err == nil {
		c.session = session
		err = session.Open(c.ctx, port, serial.Options{BaudRate: baud}, func(err error) {
			c.opened(session, err)
		})
	}
	if err != nil {
		c.openFailed(port, err)
	}
}

func (c *Controller) opened(session *serial.Session, err error) {
	if session != c.session || errors.Is(err, serial.ErrSessionClosed) {
		return
	}
	if err != nil {
		c.openFailed(session.PortName(), err)
		return
	}

	c.cfg.Metrics.RecordConnect(resultOK)
	c.cfg.IO.Println(c.catalog.Get("DEVICE_FOUND",
		session.PortName(),
		strconv.Itoa(session.BaudRate()),
		session.Conn().ID(),
	))
	if c.cfg.OnConnected != nil {
		c.cfg.OnConnected(session.PortName(), session.BaudRate())
	}
}

func (c *Controller) openFailed(port string, err error) {
	c.logger.Warn("Connection attempt failed", zap.String("port", port), zap.Error(err))
	c.cfg.Metrics.RecordConnect(resultFailed)
	c.cfg.IO.Println(c.catalog.Get("CONNECT_FAILED", port, reason(err)))
	c.prompt()
}

func (c *Controller) onData(chunk []byte) {
	c.cfg.IO.Print(string(chunk))
}

func (c *Controller) onDrop(session *serial.Session, err error) {
	if session != c.session || c.exited {
		return
	}
	c.cfg.IO.Println(c.catalog.Get("DEVICE_DROPPED", session.PortName(), reason(err)))
	c.prompt()
}

func (c *Controller) closeSession() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.logger.Debug("Error closing session", zap.Error(err))
	}
	c.session = nil
}

// reason is the short form of err shown on the terminal.
func reason(err error) string {
	var serr *serial.SessionError
	if errors.As(err, &serr) && serr.Err != nil {
		return serr.Err.Error()
	}
	return fmt.Sprint(err)
}
