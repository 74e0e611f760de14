// Package ipc implements the message channel between the terminal host and
// the port picker.
//
// The two sides run as separate contexts (another bubbletea program in the
// same process, or another process entirely) and only ever exchange
// structured messages: a name plus positional arguments.
//
// # Bootstrap
//
// A freshly spawned surface knows nothing but its window back to the
// creator. The handshake hands it a channel endpoint:
//
//	picker (Responder)                     host (Initiator)
//	  Load ── hello ──────────window──────▶ HandleWindowMessage
//	                                          OpenChannel
//	  HandleWindowMessage ◀──window── channel-init{endpoint}
//	  bind, Start                             Start, terminal-info ──▶
//	  init-ok ──────────────channel──────▶  Ready (or after Grace)
//
// channel-init travels only on the window and is never dispatched. The
// responder binds at most one endpoint; a second channel-init is ignored.
// If init-ok never arrives the initiator proceeds after the grace delay.
//
// # Dispatch
//
// Each side builds a Dispatcher from a Table of Kind to Handler once.
// Kinds carry a direction, so a table that registers a kind its side never
// receives is rejected at construction. Messages with unknown names are
// logged once and dropped; they never take a side down.
//
// # Transports
//
// NewPipe creates an in-process pair delivering on an eventloop.Loop.
// WebSocketPort carries the same messages as JSON text frames, and LazyPort
// queues traffic until a remote end dials in.
package ipc
