package picker

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/ipc"
	"github.com/beagle-term/beagle/internal/serial"
)

// ProgramView forwards controller updates to a bubbletea program. Updates
// are queued in order and delivered from a separate goroutine, so the
// controller's loop never waits on the UI.
type ProgramView struct {
	mu      sync.Mutex
	queue   []tea.Msg
	program *tea.Program
	wake    chan struct{}
}

// NewProgramView returns a view that buffers until Attach.
func NewProgramView() *ProgramView {
	return &ProgramView{wake: make(chan struct{}, 1)}
}

// Attach starts delivering to p. Call it once, before p.Run.
func (v *ProgramView) Attach(p *tea.Program) {
	v.mu.Lock()
	if v.program != nil {
		v.mu.Unlock()
		return
	}
	v.program = p
	v.mu.Unlock()

	go v.deliver(p)
	v.signal()
}

func (v *ProgramView) deliver(p *tea.Program) {
	for range v.wake {
		for {
			v.mu.Lock()
			if len(v.queue) == 0 {
				v.mu.Unlock()
				break
			}
			msg := v.queue[0]
			v.queue = v.queue[1:]
			v.mu.Unlock()

			// Send returns immediately once the program has exited.
			p.Send(msg)
			if _, ok := msg.(dismissMsg); ok {
				return
			}
		}
	}
}

func (v *ProgramView) push(msg tea.Msg) {
	v.mu.Lock()
	v.queue = append(v.queue, msg)
	v.mu.Unlock()
	v.signal()
}

func (v *ProgramView) signal() {
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

func (v *ProgramView) ShowScanning() { v.push(scanningMsg{}) }

func (v *ProgramView) ShowPorts(ports []serial.PortDescriptor, err error) {
	v.push(portsMsg{ports: ports, err: err})
}

func (v *ProgramView) ShowTerminalInfo(info ipc.TerminalInfo) { v.push(terminalInfoMsg(info)) }

func (v *ProgramView) Dismiss() { v.push(dismissMsg{}) }

// Actions returns the Actions a Model uses to drive c. Each command is
// posted onto c's loop.
func (c *Controller) Actions() Actions {
	return loopActions{c: c}
}

type loopActions struct {
	c *Controller
}

func (a loopActions) Rescan() {
	a.c.cfg.Loop.Post(a.c.Refresh)
}

func (a loopActions) Confirm(portName string, baudRate int) {
	a.c.cfg.Loop.Post(func() {
		if err := a.c.Confirm(portName, baudRate); err != nil {
			a.c.logger.Warn("Failed to send port choice",
				zap.String("port", portName),
				zap.Error(err),
			)
		}
	})
}

func (a loopActions) Cancel() {
	a.c.cfg.Loop.Post(a.c.Cancel)
}
