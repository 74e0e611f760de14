package host

import "github.com/beagle-term/beagle/internal/ipc"

// IO is the terminal the controller drives.
type IO interface {
	Print(s string)
	Println(s string)
	Size() (width, height int)
	// Bind installs the input handlers. They may be called from any
	// goroutine.
	Bind(onKeystroke func(data []byte), onResize func(width, height int))
}

// Surface is a picker surface spawned by the host. Window handler and
// dismissal callbacks run on the host's loop. OnDismiss fires only when the
// surface goes away on its own, never as a result of Close.
type Surface interface {
	ipc.Window
	Show() error
	Close() error
	SetWindowHandler(func(ipc.Envelope))
	OnDismiss(func())
}

// SurfaceFactory creates a fresh picker surface for every prompt.
type SurfaceFactory func() (Surface, error)
