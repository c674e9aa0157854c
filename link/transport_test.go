package link

import (
	"context"
	"errors"
	"testing"

	"go.bug.st/serial"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{}

	transport, err := dialer.Dial(context.Background(), Device{}, DefaultParams())

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "link: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{}

	transport, err := dialer.Dial(nil, Device{Name: "/dev/ttyUSB0"}, DefaultParams())

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "link: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx, Device{Name: "/dev/nonexistent"}, DefaultParams())

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_NonexistentPort(t *testing.T) {
	dialer := SerialDialer{}

	params := Params{
		BaudRate: 9600,
		DataBits: 7,
		StopBits: serial.TwoStopBits,
		Parity:   serial.EvenParity,
	}
	transport, err := dialer.Dial(context.Background(), Device{Name: "/dev/nonexistent"}, params)

	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if transport != nil {
		t.Error("expected nil transport for non-existent port")
	}
}

func TestParseParity(t *testing.T) {
	tests := []struct {
		in      string
		want    serial.Parity
		wantErr bool
	}{
		{"", serial.NoParity, false},
		{"none", serial.NoParity, false},
		{"None", serial.NoParity, false},
		{"odd", serial.OddParity, false},
		{"EVEN", serial.EvenParity, false},
		{"mark", serial.MarkParity, false},
		{"space", serial.SpaceParity, false},
		{"sometimes", serial.NoParity, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseParity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseParity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseParity(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseStopBits(t *testing.T) {
	tests := []struct {
		in      string
		want    serial.StopBits
		wantErr bool
	}{
		{"", serial.OneStopBit, false},
		{"1", serial.OneStopBit, false},
		{"1.5", serial.OnePointFiveStopBits, false},
		{"2", serial.TwoStopBits, false},
		{"3", serial.OneStopBit, true},
	}

	for _, tt := range tests {
		got, err := ParseStopBits(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStopBits(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseStopBits(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestChoose(t *testing.T) {
	t.Run("no ports", func(t *testing.T) {
		if _, err := choose(nil); !errors.Is(err, ErrCancelled) {
			t.Errorf("expected ErrCancelled, got: %v", err)
		}
	})

	t.Run("prefers USB", func(t *testing.T) {
		got, err := choose([]Device{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Name != "/dev/ttyUSB0" {
			t.Errorf("expected /dev/ttyUSB0, got %s", got.Name)
		}
	})

	t.Run("falls back to first", func(t *testing.T) {
		got, err := choose([]Device{{Name: "/dev/ttyS0"}, {Name: "/dev/ttyS1"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Name != "/dev/ttyS0" {
			t.Errorf("expected /dev/ttyS0, got %s", got.Name)
		}
	})
}

func TestSerialDirectory_Preferred(t *testing.T) {
	dir := SerialDirectory{Preferred: "/dev/pts/7"}

	got, err := dir.RequestNew(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "/dev/pts/7" {
		t.Errorf("expected preferred port, got %s", got.Name)
	}
}

func TestDeviceString(t *testing.T) {
	usb := Device{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"}
	if got := usb.String(); got != "/dev/ttyACM0 (USB 2341:0043)" {
		t.Errorf("unexpected USB device string: %q", got)
	}
	if got := (Device{Name: "COM3"}).String(); got != "COM3" {
		t.Errorf("unexpected device string: %q", got)
	}
}

// Test the interface compliance
func TestTransportInterface(t *testing.T) {
	var _ Transport = NewTestTransport()
	var _ inputResetter = NewTestTransport()
	var _ inputResetter = (*serialTransport)(nil)
	var _ Dialer = SerialDialer{}
	var _ Directory = SerialDirectory{}
}
