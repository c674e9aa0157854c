package link

//go:generate go tool mockgen -source=transport.go -destination=linktest/mock_transport.go -package=linktest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Gurux/gxcommon-go"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Transport represents an open, bidirectional byte stream to a device.
//
// Read blocks until data is available, the read timeout of the underlying
// port elapses (returning 0, nil) or the transport is closed. Close must
// unblock a pending Read.
type Transport interface {
	io.ReadWriteCloser
	// IsConnected reports whether the transport still considers itself open.
	IsConnected() bool
	// Probe checks that the device is still reachable without exchanging
	// payload bytes.
	Probe() error
}

// Dialer opens a Transport to a device.
//
// Dialer abstracts how the connection is created (for example, via a
// serial port or a test double). Dial applies the given line parameters and
// returns an error if the device rejects them or is busy.
type Dialer interface {
	Dial(ctx context.Context, device Device, params Params) (Transport, error)
}

// Directory discovers devices the session may open.
type Directory interface {
	// ListAuthorized returns the devices that are currently available.
	ListAuthorized(ctx context.Context) ([]Device, error)
	// RequestNew chooses a device. It returns ErrCancelled when no device
	// was chosen.
	RequestNew(ctx context.Context) (Device, error)
}

// Device identifies a physical port.
type Device struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

func (d Device) String() string {
	if d.IsUSB {
		return fmt.Sprintf("%s (USB %s:%s)", d.Name, d.VID, d.PID)
	}
	return d.Name
}

// Params is the line parameter bundle applied on every open.
type Params struct {
	BaudRate int
	DataBits int
	StopBits serial.StopBits
	Parity   serial.Parity
}

// DefaultParams returns 115200 baud, 8 data bits, one stop bit, no parity.
func DefaultParams() Params {
	return Params{
		BaudRate: 115200,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
}

func (p Params) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: p.BaudRate,
		DataBits: p.DataBits,
		StopBits: p.StopBits,
		Parity:   p.Parity,
	}
}

// ParseParity converts a parity name (None, Odd, Even, Mark, Space; any
// case) to a serial parity.
func ParseParity(name string) (serial.Parity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return serial.NoParity, nil
	}
	p, err := gxcommon.ParityParse(strings.ToUpper(name[:1]) + strings.ToLower(name[1:]))
	if err != nil {
		return serial.NoParity, fmt.Errorf("parse parity %q: %w", name, err)
	}
	switch p {
	case gxcommon.ParityNone:
		return serial.NoParity, nil
	case gxcommon.ParityOdd:
		return serial.OddParity, nil
	case gxcommon.ParityEven:
		return serial.EvenParity, nil
	case gxcommon.ParityMark:
		return serial.MarkParity, nil
	case gxcommon.ParitySpace:
		return serial.SpaceParity, nil
	}
	return serial.NoParity, fmt.Errorf("unsupported parity %q", name)
}

// ParseStopBits converts "1", "1.5" or "2" to serial stop bits.
func ParseStopBits(s string) (serial.StopBits, error) {
	switch strings.TrimSpace(s) {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	}
	return serial.OneStopBit, fmt.Errorf("unsupported stop bits %q", s)
}

// SerialDialer opens devices as serial ports using go.bug.st/serial.
type SerialDialer struct {
	// ReadTimeout bounds each Read so the read loop can observe a stop
	// request without waiting for data. Zero blocks until data arrives.
	ReadTimeout time.Duration
}

// Dial opens the serial port named by device with the given parameters.
func (d SerialDialer) Dial(ctx context.Context, device Device, params Params) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("link: context is nil")
	}
	if device.Name == "" {
		return nil, errors.New("link: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := serial.Open(device.Name, params.mode())
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device.Name, err)
	}

	if d.ReadTimeout > 0 {
		if err := port.SetReadTimeout(d.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", device.Name, err)
		}
	}
	return &serialTransport{port: port, connected: true}, nil
}

// serialTransport adapts a serial.Port to Transport.
type serialTransport struct {
	port serial.Port

	mu        sync.Mutex
	connected bool
}

func (t *serialTransport) Read(p []byte) (int, error) {
	return t.port.Read(p)
}

func (t *serialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

// ResetInputBuffer drops bytes the driver queued before the read loop
// started.
func (t *serialTransport) ResetInputBuffer() error {
	return t.port.ResetInputBuffer()
}

func (t *serialTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Probe queries the modem status lines; the driver fails the call once the
// device has gone away.
func (t *serialTransport) Probe() error {
	_, err := t.port.GetModemStatusBits()
	return err
}

func (t *serialTransport) Close() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	t.mu.Unlock()
	return t.port.Close()
}

// SerialDirectory lists serial ports through the OS enumerator.
type SerialDirectory struct {
	// Preferred is returned by RequestNew when set, whether or not the
	// enumerator reports it (virtual ports often are not listed).
	Preferred string
}

// ListAuthorized returns every serial port the enumerator reports.
func (d SerialDirectory) ListAuthorized(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	devices := make([]Device, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, Device{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return devices, nil
}

// RequestNew returns the preferred port, otherwise the first USB port,
// otherwise the first port found.
func (d SerialDirectory) RequestNew(ctx context.Context) (Device, error) {
	if d.Preferred != "" {
		return Device{Name: d.Preferred}, nil
	}
	devices, err := d.ListAuthorized(ctx)
	if err != nil {
		return Device{}, err
	}
	return choose(devices)
}

func choose(devices []Device) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrCancelled
	}
	for _, dev := range devices {
		if dev.IsUSB {
			return dev, nil
		}
	}
	return devices[0], nil
}
