package ui

import (
	"strings"
	"testing"

	"github.com/beagle-term/beagle/internal/serial"
)

func TestHeaderRender(t *testing.T) {
	h := Header{
		Title:   "Serial ports",
		Command: "beagle ports --all",
		Params: []Param{
			{Key: "Discovery", Value: "_iostream._tcp"},
			{Key: "Exclude", Value: "none"},
		},
		Width: 80,
	}
	out := h.Render()

	for _, want := range []string{"SERIAL PORTS", "beagle ports --all", "_iostream._tcp"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Discovery") > strings.Index(out, "Exclude") {
		t.Error("params should keep their order")
	}
}

func TestClampWidth(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{20, MinTerminalWidth},
		{80, 80},
		{300, MaxContentWidth},
	}
	for _, tt := range tests {
		if got := clampWidth(tt.in); got != tt.want {
			t.Errorf("clampWidth(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTerminalWidthFallback(t *testing.T) {
	if got := TerminalWidth(-1); got != DefaultWidth {
		t.Errorf("TerminalWidth(-1) = %d, want %d", got, DefaultWidth)
	}
}

func TestRenderPorts(t *testing.T) {
	out := RenderPorts([]serial.PortDescriptor{
		{Name: "/dev/ttyUSB0", Kind: serial.KindUSB, Description: "FT232R USB UART", SerialNumber: "A50285BI"},
		{Name: "tcp://10.0.0.5:3001", Kind: serial.KindNetwork},
	})

	for _, want := range []string{"1. ", "/dev/ttyUSB0", "FT232R USB UART", "A50285BI", "2. ", "tcp://10.0.0.5:3001"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderPorts() missing %q:\n%s", want, out)
		}
	}
}
