package logbook

import (
	"time"

	"i4.energy/across/serialterm/frame"
)

// Direction tells where an entry came from.
type Direction int

const (
	DirectionRx Direction = iota
	DirectionTx
	DirectionSystem
)

func (d Direction) String() string {
	switch d {
	case DirectionRx:
		return "rx"
	case DirectionTx:
		return "tx"
	default:
		return "system"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Entry is one line of the terminal log.
type Entry struct {
	ID        string     `json:"id"`
	Time      time.Time  `json:"time"`
	Direction Direction  `json:"direction"`
	Kind      frame.Kind `json:"kind"`
	// Data is the text shown for the entry: the frame content (or the
	// repaired value) for rx, the rendered payload for tx, the message for
	// system entries.
	Data string `json:"data"`
	// Original is "<prefix> <content>" for prefixed command frames.
	Original string `json:"original,omitempty"`
	// Raw holds the bytes sent for tx entries.
	Raw       []byte       `json:"raw,omitempty"`
	Frame     *frame.Frame `json:"-"`
	Fixed     bool         `json:"fixed,omitempty"`
	IsError   bool         `json:"is_error,omitempty"`
	HasPrefix bool         `json:"has_prefix,omitempty"`
}
