// Package picker is the port picker: the surface the terminal spawns to let
// the user choose a serial port and baud rate.
//
// Controller holds the picker's side of the ipc channel and talks to the
// host only through messages. It enumerates ports on every show and
// rescan, sends one connectToProfile when the user confirms, and then
// dismisses itself. Opening the port is the host's job.
//
// Model is the bubbletea rendering of the picker. ProgramView and Actions
// connect the two without letting UI code touch controller state.
package picker
