package surface

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/host"
	"github.com/beagle-term/beagle/internal/ipc"
	"github.com/beagle-term/beagle/internal/serial"
	"github.com/beagle-term/beagle/internal/server"
)

const waitTimeout = 5 * time.Second

var (
	_ host.Surface = (*Local)(nil)
	_ host.Surface = (*Remote)(nil)
)

type staticLister []serial.PortDescriptor

func (l staticLister) ListPorts(ctx context.Context) ([]serial.PortDescriptor, error) {
	return l, nil
}

var testPorts = staticLister{
	{Name: "/dev/cu.Bluetooth-Incoming-Port", Kind: serial.KindNative},
	{Name: "/dev/ttyUSB0", Kind: serial.KindUSB, SerialNumber: "A50285BI"},
}

// pipeKeyboard hands key presses to whoever holds the redirect.
type pipeKeyboard struct {
	mu       sync.Mutex
	w        io.Writer
	restores int
}

func (k *pipeKeyboard) Redirect(w io.Writer) func() {
	k.mu.Lock()
	k.w = w
	k.mu.Unlock()
	return func() {
		k.mu.Lock()
		k.w = nil
		k.restores++
		k.mu.Unlock()
	}
}

func (k *pipeKeyboard) writer() io.Writer {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.w
}

func (k *pipeKeyboard) restoreCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.restores
}

// pressUntil writes key to w every 50ms until stop is closed or a write
// fails.
func pressUntil(w func() io.Writer, key string, stop <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if out := w(); out != nil {
			if _, err := out.Write([]byte(key)); err != nil {
				return
			}
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// waitFor polls cond until it holds or waitTimeout passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting: %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// stalledWriter blocks every write until release is closed.
type stalledWriter struct {
	release chan struct{}
}

func (w stalledWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

func testProgramOptions() []tea.ProgramOption {
	return []tea.ProgramOption{
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	}
}

func startLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func onLoop(t *testing.T, loop *eventloop.Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	if !loop.Post(func() {
		defer close(done)
		fn()
	}) {
		t.Fatal("loop stopped")
	}
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the loop")
	}
}

// hostSide plays the terminal: it runs the initiator and closes the
// surface as soon as a choice arrives.
type hostSide struct {
	initiator *ipc.Initiator
	choices   chan ipc.ConnectToProfile
	dismissed chan struct{}
}

func bindHost(t *testing.T, loop *eventloop.Loop, s host.Surface) *hostSide {
	t.Helper()
	h := &hostSide{
		choices:   make(chan ipc.ConnectToProfile, 4),
		dismissed: make(chan struct{}, 4),
	}
	var setupErr error
	onLoop(t, loop, func() {
		d, err := ipc.NewDispatcher(ipc.ToHost, ipc.Table{
			ipc.KindConnectToProfile: func(args ...any) {
				_ = s.Close()
				req, err := ipc.ParseConnectToProfile(args)
				if err != nil {
					t.Errorf("ParseConnectToProfile() error = %v", err)
					return
				}
				h.choices <- req
			},
		})
		if err != nil {
			setupErr = err
			return
		}
		h.initiator, err = ipc.NewInitiator(ipc.InitiatorConfig{
			Loop:       loop,
			Window:     s,
			Dispatcher: d,
			Info: func() ipc.TerminalInfo {
				return ipc.TerminalInfo{Width: 80, Height: 24, AcceptLanguages: []string{"en"}}
			},
		})
		if err != nil {
			setupErr = err
			return
		}
		s.SetWindowHandler(h.initiator.HandleWindowMessage)
		s.OnDismiss(func() { h.dismissed <- struct{}{} })
		setupErr = s.Show()
	})
	if setupErr != nil {
		t.Fatalf("binding the picker failed: %v", setupErr)
	}
	return h
}

func (h *hostSide) choice(t *testing.T) ipc.ConnectToProfile {
	t.Helper()
	select {
	case req := <-h.choices:
		return req
	case <-time.After(waitTimeout):
		t.Fatal("no connectToProfile received")
		return ipc.ConnectToProfile{}
	}
}

func newTestLocal(t *testing.T, loop *eventloop.Loop, kb Keyboard) *Local {
	t.Helper()
	l, err := NewLocal(LocalConfig{
		PickerOptions: PickerOptions{
			Lister:         testPorts,
			BaudRates:      []int{9600, 115200},
			BaudRate:       115200,
			ProgramOptions: testProgramOptions(),
		},
		Loop:     loop,
		Keyboard: kb,
		Output:   io.Discard,
	})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	return l
}

func TestLocalPickerConfirm(t *testing.T) {
	loop := startLoop(t)
	kb := &pipeKeyboard{}
	local := newTestLocal(t, loop, kb)
	h := bindHost(t, loop, local)

	stop := make(chan struct{})
	defer close(stop)
	go pressUntil(kb.writer, "\r", stop)

	req := h.choice(t)
	if req.PortName != "/dev/ttyUSB0" || req.BaudRate != 115200 {
		t.Errorf("choice = %+v, want /dev/ttyUSB0 @ 115200", req)
	}

	var info ipc.TerminalInfo
	onLoop(t, loop, func() { info = local.Controller().TerminalInfo() })
	if info.Width != 80 {
		t.Errorf("picker terminal width = %d, want 80", info.Width)
	}

	select {
	case <-h.dismissed:
		t.Error("closing the picker after a choice must not count as a dismissal")
	case <-time.After(200 * time.Millisecond):
	}
	waitFor(t, "keyboard restored", func() bool { return kb.restoreCount() == 1 })
	if got := kb.restoreCount(); got != 1 {
		t.Errorf("keyboard restored %d times, want 1", got)
	}
}

func TestLocalPickerCancelDismisses(t *testing.T) {
	loop := startLoop(t)
	kb := &pipeKeyboard{}
	local := newTestLocal(t, loop, kb)
	h := bindHost(t, loop, local)

	stop := make(chan struct{})
	defer close(stop)
	go pressUntil(kb.writer, "q", stop)

	select {
	case <-h.dismissed:
	case <-time.After(waitTimeout):
		t.Fatal("cancel did not dismiss the picker")
	}
	select {
	case req := <-h.choices:
		t.Errorf("cancel sent %+v", req)
	default:
	}

	var closeErr error
	onLoop(t, loop, func() { closeErr = local.Close() })
	if closeErr != nil {
		t.Errorf("Close() after dismissal error = %v", closeErr)
	}
}

func TestLocalCloseReturnsWhileProgramStalled(t *testing.T) {
	loop := startLoop(t)
	kb := &pipeKeyboard{}
	out := stalledWriter{release: make(chan struct{})}
	local, err := NewLocal(LocalConfig{
		PickerOptions: PickerOptions{
			Lister:         testPorts,
			BaudRates:      []int{9600, 115200},
			ProgramOptions: []tea.ProgramOption{tea.WithoutSignalHandler()},
		},
		Loop:     loop,
		Keyboard: kb,
		Output:   out,
	})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	h := bindHost(t, loop, local)

	start := time.Now()
	onLoop(t, loop, func() {
		if err := local.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	if elapsed := time.Since(start); elapsed >= closeWait/2 {
		t.Errorf("Close() held the loop for %v", elapsed)
	}

	close(out.release)
	waitFor(t, "keyboard restored", func() bool { return kb.restoreCount() == 1 })

	select {
	case <-h.dismissed:
		t.Error("Close() must not count as a dismissal")
	case <-time.After(200 * time.Millisecond):
	}
	if got := kb.restoreCount(); got != 1 {
		t.Errorf("keyboard restored %d times, want 1", got)
	}
}

func TestLocalShowTwice(t *testing.T) {
	loop := startLoop(t)
	local := newTestLocal(t, loop, &pipeKeyboard{})
	bindHost(t, loop, local)

	var err error
	onLoop(t, loop, func() {
		err = local.Show()
		_ = local.Close()
	})
	if err == nil {
		t.Error("Show() twice should fail")
	}
}

func TestNewLocalRequiresLister(t *testing.T) {
	if _, err := NewLocal(LocalConfig{Loop: eventloop.New()}); err == nil {
		t.Error("NewLocal() without a lister should fail")
	}
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{})
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

type remoteFixture struct {
	loop   *eventloop.Loop
	remote *Remote
	host   *hostSide
	url    string
}

func newRemoteFixture(t *testing.T) *remoteFixture {
	t.Helper()
	f := &remoteFixture{loop: startLoop(t)}
	urls := make(chan string, 1)

	var err error
	f.remote, err = NewRemote(RemoteConfig{
		Loop:     f.loop,
		Server:   newTestServer(t),
		Announce: func(url string) { urls <- url },
	})
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}
	f.host = bindHost(t, f.loop, f.remote)

	select {
	case f.url = <-urls:
	case <-time.After(waitTimeout):
		t.Fatal("window URL never announced")
	}
	return f
}

// runPicker starts a standalone picker that keeps pressing key.
func (f *remoteFixture) runPicker(t *testing.T, key string) <-chan error {
	t.Helper()
	pr, pw := io.Pipe()
	stop := make(chan struct{})
	t.Cleanup(func() {
		close(stop)
		_ = pw.Close()
	})
	go pressUntil(func() io.Writer { return pw }, key, stop)

	result := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*waitTimeout)
		defer cancel()
		result <- RunStandalone(ctx, StandaloneConfig{
			PickerOptions: PickerOptions{
				Lister:         testPorts,
				BaudRates:      []int{9600, 115200},
				BaudRate:       9600,
				ProgramOptions: append(testProgramOptions(), tea.WithInput(pr)),
			},
			WindowURL: f.url,
		})
	}()
	return result
}

func waitResult(t *testing.T, result <-chan error) {
	t.Helper()
	select {
	case err := <-result:
		if err != nil {
			t.Errorf("RunStandalone() error = %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("standalone picker did not exit")
	}
}

func TestRemotePickerConfirm(t *testing.T) {
	f := newRemoteFixture(t)
	result := f.runPicker(t, "\r")

	req := f.host.choice(t)
	if req.PortName != "/dev/ttyUSB0" || req.BaudRate != 9600 {
		t.Errorf("choice = %+v, want /dev/ttyUSB0 @ 9600", req)
	}
	waitResult(t, result)

	select {
	case <-f.host.dismissed:
		t.Error("a closed remote picker must not report a dismissal")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRemotePickerCancelDismisses(t *testing.T) {
	f := newRemoteFixture(t)
	result := f.runPicker(t, "q")

	waitResult(t, result)
	select {
	case <-f.host.dismissed:
	case <-time.After(waitTimeout):
		t.Fatal("a cancelled remote picker should be dismissed")
	}
	select {
	case req := <-f.host.choices:
		t.Errorf("cancel sent %+v", req)
	default:
	}
}

func TestRemoteQueuesUntilConnected(t *testing.T) {
	loop := eventloop.New()
	r, err := NewRemote(RemoteConfig{Loop: loop, Server: newTestServer(t)})
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}

	if err := r.PostWindowMessage(ipc.Envelope{Name: "channel-init"}); err != nil {
		t.Errorf("PostWindowMessage() before connect error = %v", err)
	}
	if len(r.pending) != 1 {
		t.Errorf("pending = %d, want 1", len(r.pending))
	}

	_ = r.Close()
	if err := r.PostWindowMessage(ipc.Envelope{Name: "channel-init"}); !errors.Is(err, ipc.ErrPortClosed) {
		t.Errorf("PostWindowMessage() after Close error = %v, want ErrPortClosed", err)
	}
}

func TestRemoteShowNeedsListeningServer(t *testing.T) {
	srv, err := server.New(server.Config{})
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	r, err := NewRemote(RemoteConfig{Loop: eventloop.New(), Server: srv})
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}
	if err := r.Show(); !errors.Is(err, server.ErrNotListening) {
		t.Errorf("Show() error = %v, want ErrNotListening", err)
	}
}

func TestRunStandaloneValidates(t *testing.T) {
	if err := RunStandalone(context.Background(), StandaloneConfig{}); err == nil {
		t.Error("RunStandalone() without a window URL should fail")
	}
}
