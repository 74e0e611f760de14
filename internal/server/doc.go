// Package server is the rendezvous for pickers running in another process.
//
// When the terminal cannot draw the picker itself (a remote session, or a
// second terminal window is preferred) it listens here and prints the
// command to run elsewhere:
//
//	beagle picker --window ws://127.0.0.1:41234/window
//
// The picker dials /window and says hello. The host answers with a
// channel-init whose endpoint is a URL of the form /channel/{token}. Tokens
// are random, registered per handshake and consumed by the first dial, so
// a channel endpoint can be bound at most once.
//
// # Routes
//
//	GET /health            liveness probe
//	GET /window            bootstrap envelopes (one picker at a time)
//	GET /channel/{token}   the message channel
//
// Both websocket routes carry JSON text frames. Set CertPath and KeyPath to
// serve wss:// instead of ws://.
package server
