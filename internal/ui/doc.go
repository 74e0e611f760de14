// Package ui renders the non-interactive output of beagle's commands:
// a bordered header naming the command and its parameters, followed by
// plain listings such as the ports 'beagle ports' finds.
//
// Interactive screens live in package picker; this package only prints.
package ui
