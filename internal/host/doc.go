// Package host implements the terminal side of beagle.
//
// A Controller owns the picker prompt and the single live serial session.
// It spawns a picker surface through a SurfaceFactory, performs the
// channel handshake as the initiator, and opens a fresh serial.Session for
// every connectToProfile it receives. Keystrokes go to the session
// verbatim and device output goes to the terminal in arrival order.
//
// Failures never escape the controller: a rejected request, a failed open
// or a dropped device prints one status line and prompts again. Only the
// inability to create a picker surface ends the terminal with status 1.
package host
