package console

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/beagle-term/beagle/internal/logging"
)

// ExitKey (Ctrl-]) ends the session, as in telnet.
const ExitKey = 0x1d

// Fallback size when the output is not a terminal.
const (
	DefaultWidth  = 80
	DefaultHeight = 24
)

const readBufferSize = 1024

// Console is the user's terminal. In raw mode every keystroke is forwarded
// as typed; output is written unchanged, so line endings are the caller's
// business.
type Console struct {
	in     io.Reader
	out    io.Writer
	inFd   int
	outFd  int
	isTerm bool
	logger *zap.Logger

	outMu sync.Mutex

	mu          sync.Mutex
	onKeystroke func([]byte)
	onResize    func(width, height int)
	onExit      func()
	redirect    io.Writer
	started     bool

	restore    *term.State
	stopResize func()
	closeOnce  sync.Once
}

// New wraps stdin and stdout.
func New(logger *zap.Logger) *Console {
	c := NewWithIO(os.Stdin, os.Stdout, logger)
	c.inFd = int(os.Stdin.Fd())
	c.outFd = int(os.Stdout.Fd())
	c.isTerm = term.IsTerminal(c.inFd) && term.IsTerminal(c.outFd)
	return c
}

// NewWithIO builds a console over arbitrary streams. It never enters raw
// mode and reports the default size.
func NewWithIO(in io.Reader, out io.Writer, logger *zap.Logger) *Console {
	return &Console{
		in:     in,
		out:    out,
		inFd:   -1,
		outFd:  -1,
		logger: logging.Or(logger),
	}
}

// IsTerminal reports whether both streams are a terminal.
func (c *Console) IsTerminal() bool {
	return c.isTerm
}

// Bind installs the input handlers. They run on the console's reader
// goroutine and must not block.
func (c *Console) Bind(onKeystroke func([]byte), onResize func(width, height int)) {
	c.mu.Lock()
	c.onKeystroke = onKeystroke
	c.onResize = onResize
	c.mu.Unlock()
}

// OnExitKey installs the handler for ExitKey.
func (c *Console) OnExitKey(fn func()) {
	c.mu.Lock()
	c.onExit = fn
	c.mu.Unlock()
}

// Start enters raw mode and begins reading input.
func (c *Console) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if c.isTerm {
		state, err := term.MakeRaw(c.inFd)
		if err != nil {
			return err
		}
		c.restore = state
		c.stopResize = watchResize(c.resized)
	}

	go c.readInput()
	return nil
}

// Close leaves raw mode. The reader goroutine ends with its input.
func (c *Console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.stopResize != nil {
			c.stopResize()
		}
		if c.restore != nil {
			err = term.Restore(c.inFd, c.restore)
		}
	})
	return err
}

// Print writes s as is.
func (c *Console) Print(s string) {
	c.write(s)
}

// Println writes s followed by CRLF. Bare newlines inside s are expanded
// since raw mode disables output post-processing.
func (c *Console) Println(s string) {
	if c.isTerm {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	c.write(s + "\r\n")
}

func (c *Console) write(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if _, err := io.WriteString(c.out, s); err != nil {
		c.logger.Debug("Console write failed", zap.Error(err))
	}
}

// Size returns the terminal geometry, or the default when unknown.
func (c *Console) Size() (width, height int) {
	if c.outFd < 0 {
		return DefaultWidth, DefaultHeight
	}
	w, h, err := term.GetSize(c.outFd)
	if err != nil || w <= 0 || h <= 0 {
		return DefaultWidth, DefaultHeight
	}
	return w, h
}

// Redirect sends keystrokes to w instead of the keystroke handler until the
// returned func is called. ExitKey is still honoured.
func (c *Console) Redirect(w io.Writer) (restore func()) {
	c.mu.Lock()
	c.redirect = w
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.redirect == w {
				c.redirect = nil
			}
			c.mu.Unlock()
		})
	}
}

func (c *Console) resized() {
	w, h := c.Size()
	c.mu.Lock()
	fn := c.onResize
	c.mu.Unlock()
	if fn != nil {
		fn(w, h)
	}
}

func (c *Console) readInput() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.in.Read(buf)
		if n > 0 {
			c.deliver(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Debug("Console input ended", zap.Error(err))
			}
			return
		}
	}
}

func (c *Console) deliver(data []byte) {
	exit := false
	if i := bytes.IndexByte(data, ExitKey); i >= 0 {
		data, exit = data[:i], true
	}

	c.mu.Lock()
	redirect, onKeystroke, onExit := c.redirect, c.onKeystroke, c.onExit
	c.mu.Unlock()

	if len(data) > 0 {
		chunk := append([]byte(nil), data...)
		switch {
		case redirect != nil:
			if _, err := redirect.Write(chunk); err != nil {
				c.logger.Debug("Dropping redirected input", zap.Error(err))
			}
		case onKeystroke != nil:
			onKeystroke(chunk)
		}
	}
	if exit && onExit != nil {
		onExit()
	}
}
