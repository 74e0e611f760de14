// Package serial owns the connection between the terminal and a device.
//
// A Session is a one-shot state machine around a single connection:
//
//	s, _ := serial.NewSession(serial.Config{Loop: loop, Transport: t, OnData: print})
//	s.Open(ctx, "/dev/ttyUSB0", serial.Options{BaudRate: 115200}, func(err error) { ... })
//	s.Write([]byte("ls\n")) // dropped unless Open
//	s.Close()
//
// Opening is asynchronous and reports back on the event loop. Exactly one
// read pump feeds OnData per connection, and writes leave through a
// per-session goroutine in call order so the loop never waits on a device.
// A result that arrives after Close is discarded and its connection closed.
//
// Transports supply the ports: DeviceTransport for local hardware,
// NetworkTransport for ser2net style bridges, SimulatorTransport for a
// shell on a pty, and MultiTransport to route between them by name.
package serial
