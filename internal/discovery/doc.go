// Package discovery finds network serial bridges with mDNS.
//
// ser2net (and compatible bridges) can advertise each exported serial line
// as a "_iostream._tcp" service. The picker lists every bridge it hears
// about next to the local ports, named "tcp://host:port", and the serial
// package's network transport dials them directly.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridges must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
//
// Scanning is safe for concurrent use.
package discovery
