//go:build windows

package console

// watchResize is a no-op: Windows consoles have no resize signal.
func watchResize(fn func()) (stop func()) {
	return func() {}
}
