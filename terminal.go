package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"i4.energy/across/serialterm/format"
	"i4.energy/across/serialterm/link"
	"i4.energy/across/serialterm/logbook"
)

// PayloadFormat selects how payloads are typed and displayed.
type PayloadFormat string

const (
	FormatASCII PayloadFormat = "ascii"
	FormatHex   PayloadFormat = "hex"
)

// ParsePayloadFormat accepts "ascii" or "hex".
func ParsePayloadFormat(s string) (PayloadFormat, error) {
	switch PayloadFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatASCII:
		return FormatASCII, nil
	case FormatHex:
		return FormatHex, nil
	}
	return FormatASCII, fmt.Errorf("unknown payload format %q", s)
}

var errQuit = errors.New("quit")

// Terminal ties the link session to the log, the send history and the
// console. Input lines are sent to the device; lines starting with '/' are
// commands.
type Terminal struct {
	Session *link.Session
	Log     *logbook.Log
	History *logbook.History
	Console *Console
	Logger  *slog.Logger

	mu       sync.Mutex
	txFormat PayloadFormat
}

func (t *Terminal) TxFormat() PayloadFormat {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.txFormat == "" {
		return FormatASCII
	}
	return t.txFormat
}

func (t *Terminal) SetTxFormat(f PayloadFormat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.txFormat = f
}

// Send encodes text in the given format, writes it to the device and
// records it in the log and the history. ASCII payloads get a trailing
// newline.
func (t *Terminal) Send(ctx context.Context, text string, f PayloadFormat) ([]byte, error) {
	data, display, err := encodePayload(text, f)
	if err != nil {
		return nil, err
	}
	if err := t.Session.Send(ctx, data); err != nil {
		t.Log.AddSystem(fmt.Sprintf("send failed: %v", err), true)
		return nil, err
	}
	t.Log.AddSent(data, display)
	t.History.Add(text)
	t.Logger.Debug("Payload sent", "bytes", len(data), "format", string(f))
	return data, nil
}

func encodePayload(text string, f PayloadFormat) ([]byte, string, error) {
	switch f {
	case FormatHex:
		if !format.IsHex(text) {
			return nil, "", fmt.Errorf("not a hex payload: %q", text)
		}
		data, err := format.ParseHex(text)
		if err != nil {
			return nil, "", err
		}
		return data, format.Hex(data, " "), nil
	default:
		if strings.TrimSpace(text) == "" {
			return nil, "", errors.New("empty payload")
		}
		return []byte(text + "\n"), text, nil
	}
}

// Run handles input lines until ctx is done, lines is closed or /quit.
func (t *Terminal) Run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := t.Handle(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				t.Console.Error(err)
			}
		}
	}
}

// Handle runs one input line. It returns errQuit for /quit.
func (t *Terminal) Handle(ctx context.Context, line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		_, err := t.Send(ctx, line, t.TxFormat())
		return err
	}

	fields := strings.Fields(trimmed)
	switch fields[0] {
	case "/connect":
		return t.connect(ctx, fields[1:])
	case "/disconnect":
		return t.Session.Disconnect(ctx)
	case "/status":
		rx, tx := t.Log.Counters()
		t.Console.Status(t.Session.Status(), rx, tx)
	case "/ports":
		devices, err := t.Session.Devices(ctx)
		if err != nil {
			return err
		}
		t.Console.Devices(devices)
	case "/history":
		t.Console.History(t.History.List())
	case "/clear":
		t.Log.Clear()
		t.Console.Notice("msg.cleared")
	case "/hex":
		t.SetTxFormat(FormatHex)
		t.Console.Notice("msg.tx_format", string(FormatHex))
	case "/ascii":
		t.SetTxFormat(FormatASCII)
		t.Console.Notice("msg.tx_format", string(FormatASCII))
	case "/rate":
		if len(fields) < 2 {
			t.Console.Notice("msg.refresh_rate", t.Log.RefreshRate().String())
			return nil
		}
		rate, err := logbook.ParseRefreshRate(fields[1])
		if err != nil {
			return err
		}
		t.Log.SetRefreshRate(rate)
		t.Console.Notice("msg.refresh_rate", rate.String())
	case "/quit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
	return nil
}

// connect opens the named port, or the selected one, or asks the directory
// for one. A session left in the error state is closed first.
func (t *Terminal) connect(ctx context.Context, args []string) error {
	if t.Session.State() == link.StateError {
		if err := t.Session.Disconnect(ctx); err != nil {
			return err
		}
	}

	switch {
	case len(args) > 0:
		if err := t.Session.UseDevice(link.Device{Name: args[0]}); err != nil {
			return err
		}
	case t.Session.Device() == nil:
		if _, err := t.Session.SelectDevice(ctx); err != nil {
			return err
		}
	}
	return t.Session.Connect(ctx)
}
