package surface

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/ipc"
	"github.com/beagle-term/beagle/internal/logging"
	"github.com/beagle-term/beagle/internal/picker"
)

// flushWait bounds how long the picker waits for its choice to be written
// after the program ends.
const flushWait = 2 * time.Second

// StandaloneConfig configures `beagle picker`, the picker process a Remote
// surface waits for.
type StandaloneConfig struct {
	PickerOptions

	WindowURL string
	Observer  ipc.DispatchObserver
	Logger    *zap.Logger
}

// RunStandalone dials the host's window, runs the picker until the user
// confirms or cancels, and returns once the choice has been written.
func RunStandalone(ctx context.Context, cfg StandaloneConfig) error {
	if cfg.WindowURL == "" || cfg.Lister == nil {
		return errors.New("surface: standalone picker needs a window URL and a lister")
	}
	logger := logging.Or(cfg.Logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := eventloop.New()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()
	defer func() {
		loop.Stop()
		<-loopDone
	}()

	var ctrl *picker.Controller
	window, err := ipc.DialWebSocketWindow(ctx, cfg.WindowURL, loop, logger, func(env ipc.Envelope) {
		ctrl.HandleWindowMessage(env)
	})
	if err != nil {
		return err
	}
	defer window.Close()

	// Channels are tracked so the choice is on the wire before returning.
	var released []<-chan struct{}
	resolve := ipc.DialResolver(ctx, loop, logger)
	trackingResolve := func(transfer any) (ipc.Port, error) {
		port, err := resolve(transfer)
		if r, ok := port.(interface{ Released() <-chan struct{} }); ok {
			released = append(released, r.Released())
		}
		return port, err
	}

	view := picker.NewProgramView()
	ctrl, err = picker.New(picker.Config{
		Loop:     loop,
		Window:   window,
		Resolve:  trackingResolve,
		Lister:   cfg.Lister,
		View:     view,
		Exclude:  cfg.Exclude,
		Observer: cfg.Observer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	rate := cfg.BaudRate
	if rate == 0 && len(cfg.BaudRates) > 0 {
		rate = cfg.BaudRates[0]
	}
	model := picker.NewModel(ctrl.Actions(), cfg.Catalog, cfg.BaudRates, rate)
	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, cfg.ProgramOptions...)
	program := tea.NewProgram(model, opts...)
	view.Attach(program)

	loop.Post(func() {
		if err := ctrl.Load(); err != nil {
			logger.Error("Failed to announce picker", zap.Error(err))
		}
	})

	// The host going away ends the picker.
	go func() {
		select {
		case <-window.Done():
			logger.Debug("Host window closed")
			program.Quit()
		case <-ctx.Done():
		}
	}()

	_, runErr := program.Run()

	// Close the channel on the loop, after any queued connectToProfile.
	closed := make(chan struct{})
	var flush []<-chan struct{}
	if loop.Post(func() {
		_ = ctrl.Close()
		flush = released
		close(closed)
	}) {
		<-closed
	}
	deadline := time.After(flushWait)
wait:
	for _, ch := range flush {
		select {
		case <-ch:
		case <-deadline:
			logger.Warn("Picker channel did not finish writing")
			break wait
		}
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
