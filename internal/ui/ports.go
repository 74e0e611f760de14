package ui

import (
	"fmt"
	"strings"

	"github.com/beagle-term/beagle/internal/serial"
)

// RenderPorts lists ports as numbered entries with their details indented
// below each name.
func RenderPorts(ports []serial.PortDescriptor) string {
	var b strings.Builder
	for i, p := range ports {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, PortNameStyle.Render(p.Name))
		b.WriteString(PortDetailStyle.Render("Kind:    "+p.Kind.String()) + "\n")
		if p.Description != "" && p.Description != p.Name {
			b.WriteString(PortDetailStyle.Render("Info:    "+p.Description) + "\n")
		}
		if p.SerialNumber != "" {
			b.WriteString(PortDetailStyle.Render("Serial:  "+p.SerialNumber) + "\n")
		}
	}
	return b.String()
}

// RenderHint formats a follow-up suggestion.
func RenderHint(text string) string {
	return HintStyle.Render(text)
}
