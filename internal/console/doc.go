// Package console puts the user's terminal in raw mode and turns it into
// the keystroke, resize and output stream the host controller drives.
// Ctrl-] leaves the terminal; while a picker owns the screen, input can be
// redirected to it.
package console
