package surface

import (
	"errors"
	"io"
	"regexp"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/host"
	"github.com/beagle-term/beagle/internal/i18n"
	"github.com/beagle-term/beagle/internal/ipc"
	"github.com/beagle-term/beagle/internal/logging"
	"github.com/beagle-term/beagle/internal/picker"
)

// closeWait bounds how long a closed picker program gets to restore the
// terminal before it is killed.
const closeWait = 2 * time.Second

// Keyboard lends terminal input to an in-process picker. Redirect sends all
// input to w until restore is called.
type Keyboard interface {
	Redirect(w io.Writer) (restore func())
}

// PickerOptions configure the picker UI, wherever it runs.
type PickerOptions struct {
	Lister    picker.Lister
	Exclude   *regexp.Regexp
	Catalog   *i18n.Catalog
	BaudRates []int
	BaudRate  int

	// ProgramOptions are appended to the bubbletea options.
	ProgramOptions []tea.ProgramOption
}

// LocalConfig configures an in-process picker.
type LocalConfig struct {
	PickerOptions

	Loop     *eventloop.Loop
	Keyboard Keyboard
	Output   io.Writer
	Observer ipc.DispatchObserver
	Logger   *zap.Logger
}

// Local runs the picker in the host's process and on the host's loop. It
// takes over the terminal while shown.
type Local struct {
	cfg    LocalConfig
	logger *zap.Logger
	ctrl   *picker.Controller
	view   *picker.ProgramView

	handler func(ipc.Envelope)
	dismiss func()

	program *tea.Program
	input   *io.PipeWriter
	restore func()
	done    chan struct{}
	shown   bool
	closed  bool
}

// NewLocalFactory returns a factory producing a fresh Local per prompt.
func NewLocalFactory(cfg LocalConfig) host.SurfaceFactory {
	return func() (host.Surface, error) {
		return NewLocal(cfg)
	}
}

// NewLocal builds the picker without showing it.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Loop == nil || cfg.Lister == nil {
		return nil, errors.New("surface: local picker needs a loop and a lister")
	}
	l := &Local{
		cfg:    cfg,
		logger: logging.Or(cfg.Logger),
		view:   picker.NewProgramView(),
		done:   make(chan struct{}),
	}

	ctrl, err := picker.New(picker.Config{
		Loop:     cfg.Loop,
		Window:   localFrame{l},
		Lister:   cfg.Lister,
		View:     l.view,
		Exclude:  cfg.Exclude,
		Observer: cfg.Observer,
		Logger:   l.logger,
	})
	if err != nil {
		return nil, err
	}
	l.ctrl = ctrl
	return l, nil
}

// Controller exposes the picker controller.
func (l *Local) Controller() *picker.Controller {
	return l.ctrl
}

// localFrame is the picker's window back to the host.
type localFrame struct {
	l *Local
}

func (f localFrame) PostWindowMessage(env ipc.Envelope) error {
	l := f.l
	l.cfg.Loop.Post(func() {
		if !l.closed && l.handler != nil {
			l.handler(env)
		}
	})
	return nil
}

// PostWindowMessage delivers a bootstrap envelope to the picker.
func (l *Local) PostWindowMessage(env ipc.Envelope) error {
	if l.closed {
		return ipc.ErrPortClosed
	}
	l.cfg.Loop.Post(func() {
		if !l.closed {
			l.ctrl.HandleWindowMessage(env)
		}
	})
	return nil
}

// OpenChannel creates an in-process pipe; the picker's end is transferred
// as is.
func (l *Local) OpenChannel() (ipc.Port, any, error) {
	near, far := ipc.NewPipe(l.cfg.Loop)
	return near, far, nil
}

func (l *Local) SetWindowHandler(h func(ipc.Envelope)) { l.handler = h }

func (l *Local) OnDismiss(fn func()) { l.dismiss = fn }

// Show starts the picker program and announces it to the host.
func (l *Local) Show() error {
	if l.shown || l.closed {
		return errors.New("surface: picker already shown")
	}
	l.shown = true

	rate := l.cfg.BaudRate
	if rate == 0 && len(l.cfg.BaudRates) > 0 {
		rate = l.cfg.BaudRates[0]
	}
	model := picker.NewModel(l.ctrl.Actions(), l.cfg.Catalog, l.cfg.BaudRates, rate)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if l.cfg.Output != nil {
		opts = append(opts, tea.WithOutput(l.cfg.Output))
	}
	if l.cfg.Keyboard != nil {
		pr, pw := io.Pipe()
		l.input = pw
		l.restore = l.cfg.Keyboard.Redirect(pw)
		opts = append(opts, tea.WithInput(pr))
	}
	opts = append(opts, l.cfg.ProgramOptions...)

	l.program = tea.NewProgram(model, opts...)
	l.view.Attach(l.program)

	go l.run(l.program)

	return l.ctrl.Load()
}

func (l *Local) run(p *tea.Program) {
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		l.logger.Warn("Picker program ended with error", zap.Error(err))
	}
	close(l.done)
	if !l.cfg.Loop.Post(l.finished) {
		l.releaseInput()
	}
}

// finished runs on the loop once the program has exited.
func (l *Local) finished() {
	l.releaseInput()
	if l.closed {
		return
	}
	l.closed = true
	_ = l.ctrl.Close()
	l.logger.Debug("Local picker dismissed")
	if l.dismiss != nil {
		l.dismiss()
	}
}

// Close stops the picker without waiting for it. The keyboard is handed
// back once the program has restored the terminal, or after closeWait. It
// never triggers OnDismiss.
func (l *Local) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	err := l.ctrl.Close()

	if l.program == nil {
		l.releaseInput()
		return err
	}
	go l.stop(l.program)
	return err
}

// stop runs off the loop: Quit blocks until the program reads it.
func (l *Local) stop(p *tea.Program) {
	go p.Quit()
	select {
	case <-l.done:
		return
	case <-time.After(closeWait):
	}
	l.logger.Warn("Picker program did not exit, killing it")
	p.Kill()
	l.cfg.Loop.Post(l.releaseInput)
}

func (l *Local) releaseInput() {
	if l.restore != nil {
		l.restore()
		l.restore = nil
	}
	if l.input != nil {
		_ = l.input.Close()
		l.input = nil
	}
}
