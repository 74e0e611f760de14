package ipc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		want    Kind
		wantOK  bool
		wantDir Direction
	}{
		{"hello", KindHello, true, Bootstrap},
		{"channel-init", KindChannelInit, true, Bootstrap},
		{"init-ok", KindInitOK, true, ToHost},
		{"connectToProfile", KindConnectToProfile, true, ToHost},
		{"terminal-info", KindTerminalInfo, true, ToPicker},
		{"nope", KindUnknown, false, Bootstrap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseKind(tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("ParseKind(%q) = %v, %v, want %v, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
			if got.Direction() != tt.wantDir {
				t.Errorf("%v.Direction() = %v, want %v", got, got.Direction(), tt.wantDir)
			}
			if ok && got.String() != tt.name {
				t.Errorf("%v.String() = %q, want %q", got, got.String(), tt.name)
			}
		})
	}
}

func TestParseConnectToProfile(t *testing.T) {
	tests := []struct {
		name     string
		args     []any
		wantPort string
		wantBaud int
		wantErr  bool
	}{
		{"int rate", []any{"/dev/ttyUSB0", 9600}, "/dev/ttyUSB0", 9600, false},
		{"json float rate", []any{"/dev/ttyACM0", float64(115200)}, "/dev/ttyACM0", 115200, false},
		{"string rate", []any{"COM3", " 57600"}, "COM3", 57600, false},
		{"json number", []any{"COM3", json.Number("19200")}, "COM3", 19200, false},
		{"fractional rate", []any{"COM3", 9600.5}, "", 0, true},
		{"zero rate", []any{"COM3", 0}, "", 0, true},
		{"empty port", []any{"", 9600}, "", 0, true},
		{"port not a string", []any{42, 9600}, "", 0, true},
		{"missing rate", []any{"COM3"}, "", 0, true},
		{"rate not numeric", []any{"COM3", "fast"}, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConnectToProfile(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseConnectToProfile(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrBadArguments) {
					t.Errorf("error %v should wrap ErrBadArguments", err)
				}
				return
			}
			if got.PortName != tt.wantPort || got.BaudRate != tt.wantBaud {
				t.Errorf("ParseConnectToProfile(%v) = %+v, want %s@%d", tt.args, got, tt.wantPort, tt.wantBaud)
			}
		})
	}
}

func TestConnectToProfileMessageOrder(t *testing.T) {
	msg := ConnectToProfile{PortName: "/dev/ttyUSB0", BaudRate: 9600}.Message()
	if msg.Name != "connectToProfile" {
		t.Fatalf("Name = %q, want connectToProfile", msg.Name)
	}
	if len(msg.Args) != 2 || msg.Args[0] != "/dev/ttyUSB0" || msg.Args[1] != 9600 {
		t.Errorf("Args = %v, want [/dev/ttyUSB0 9600]", msg.Args)
	}
}

func TestParseTerminalInfoOverJSON(t *testing.T) {
	sent := TerminalInfo{Width: 132, Height: 43, Term: "xterm-256color", AcceptLanguages: []string{"en", "de"}}.Message()

	raw, err := json.Marshal(sent)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var received Message
	if err := json.Unmarshal(raw, &received); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	got, err := ParseTerminalInfo(received.Args)
	if err != nil {
		t.Fatalf("ParseTerminalInfo() error = %v", err)
	}
	if got.Width != 132 || got.Height != 43 || got.Term != "xterm-256color" || len(got.AcceptLanguages) != 2 {
		t.Errorf("ParseTerminalInfo() = %+v", got)
	}
}

func TestParseTerminalInfoRejectsGarbage(t *testing.T) {
	if _, err := ParseTerminalInfo(nil); err == nil {
		t.Error("expected error for missing argument")
	}
	if _, err := ParseTerminalInfo([]any{"80x24"}); err == nil {
		t.Error("expected error for string argument")
	}
}

func TestParseHello(t *testing.T) {
	h := ParseHello([]any{"terminal-info", 7, "locale"})
	if len(h.Requests) != 2 || h.Requests[0] != "terminal-info" || h.Requests[1] != "locale" {
		t.Errorf("ParseHello() = %v", h.Requests)
	}
}

func TestMessageCloneIsolatesArgs(t *testing.T) {
	args := []any{"a", "b"}
	m := Message{Name: "x", Args: args}
	c := m.clone()
	args[0] = "changed"
	if c.Args[0] != "a" {
		t.Errorf("clone shares its argument slice with the original")
	}
}
