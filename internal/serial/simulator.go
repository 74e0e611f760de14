package serial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/logging"
)

// SimulatorPrefix names ports served by the SimulatorTransport.
const SimulatorPrefix = "sim:"

// SimulatorTransport pretends a shell on a pseudo-terminal is a serial
// device. It is useful for trying beagle without hardware.
type SimulatorTransport struct {
	// Shell is the program run on the pty
	Shell string

	logger *zap.Logger
}

// NewSimulatorTransport returns a transport exposing a single port
// "sim:<shell>". An empty shell means $SHELL, falling back to /bin/sh.
func NewSimulatorTransport(shell string, logger *zap.Logger) *SimulatorTransport {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return &SimulatorTransport{Shell: shell, logger: logging.Or(logger)}
}

// PortName is the name the simulated port is listed under.
func (t *SimulatorTransport) PortName() string {
	return SimulatorPrefix + filepath.Base(t.Shell)
}

func (t *SimulatorTransport) ListPorts(ctx context.Context) ([]PortDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []PortDescriptor{{
		Name:        t.PortName(),
		Description: "simulated device running " + t.Shell,
		Kind:        KindSimulated,
		Metadata:    map[string]string{"shell": t.Shell},
	}}, nil
}

func (t *SimulatorTransport) Open(ctx context.Context, name string, opts Options) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(name, SimulatorPrefix) || name != t.PortName() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPort, name)
	}

	cmd := exec.Command(t.Shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	t.logger.Debug("Simulator started",
		zap.String("shell", t.Shell),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("baud", opts.BaudRate),
	)
	return &ptyConn{ptmx: ptmx, cmd: cmd, id: nextConnID()}, nil
}

type ptyConn struct {
	ptmx *os.File
	cmd  *exec.Cmd
	id   string

	closeOnce sync.Once
	closeErr  error
}

func (c *ptyConn) ID() string { return c.id }

func (c *ptyConn) Read(p []byte) (int, error) { return c.ptmx.Read(p) }

func (c *ptyConn) Write(p []byte) (int, error) { return c.ptmx.Write(p) }

func (c *ptyConn) Close() error {
	c.closeOnce.Do(func() {
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		c.closeErr = c.ptmx.Close()
		err := c.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}
