// Package logbook keeps the terminal log: received frames, sent payloads and
// system messages, in the order they happened.
package logbook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"i4.energy/across/serialterm/frame"
)

// DefaultMaxEntries bounds the number of committed entries.
const DefaultMaxEntries = 1000

// RefreshRate controls how often received entries are committed.
type RefreshRate int

const (
	RateNormal RefreshRate = iota
	RateSlow
	RateFast
)

// Interval returns the batching period. Zero means entries are committed as
// soon as they arrive.
func (r RefreshRate) Interval() time.Duration {
	switch r {
	case RateSlow:
		return time.Second
	case RateFast:
		return 0
	default:
		return 200 * time.Millisecond
	}
}

func (r RefreshRate) String() string {
	switch r {
	case RateSlow:
		return "slow"
	case RateFast:
		return "fast"
	default:
		return "normal"
	}
}

// ParseRefreshRate accepts "slow", "normal" or "fast".
func ParseRefreshRate(s string) (RefreshRate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slow":
		return RateSlow, nil
	case "", "normal":
		return RateNormal, nil
	case "fast":
		return RateFast, nil
	}
	return RateNormal, fmt.Errorf("unknown refresh rate %q", s)
}

// Log is the ordered, bounded entry log.
//
// Received frames are admitted into a pending batch that Run commits on every
// tick of the refresh rate. Sent and system entries flush the batch before
// they are committed, so the committed order is the order of admission.
type Log struct {
	mu       sync.Mutex
	clock    clock.Clock
	logger   *slog.Logger
	rate     RefreshRate
	max      int
	entries  []Entry
	pending  []Entry
	rx, tx   int
	onCommit func([]Entry)

	rateChanged chan struct{}
}

// Option configures a Log.
type Option func(*Log)

func WithClock(c clock.Clock) Option {
	return func(l *Log) {
		l.clock = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

func WithRefreshRate(r RefreshRate) Option {
	return func(l *Log) {
		l.rate = r
	}
}

// WithMaxEntries sets the entry cap. Non-positive values keep the default.
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.max = n
		}
	}
}

// WithCommitHook sets a function that receives every committed batch, in
// order. It runs with the Log's lock held and must not call back into the
// Log.
func WithCommitHook(fn func([]Entry)) Option {
	return func(l *Log) {
		l.onCommit = fn
	}
}

// New creates an empty Log.
func New(opts ...Option) *Log {
	l := &Log{
		clock:       clock.New(),
		logger:      slog.Default(),
		max:         DefaultMaxEntries,
		rateChanged: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run commits the pending batch on every refresh tick until ctx is done,
// then commits whatever is left.
func (l *Log) Run(ctx context.Context) error {
	defer l.Flush()

	for {
		interval := l.RefreshRate().Interval()
		if interval <= 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-l.rateChanged:
				continue
			}
		}

		ticker := l.clock.Ticker(interval)
	tick:
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return nil
			case <-l.rateChanged:
				ticker.Stop()
				break tick
			case <-ticker.C:
				l.Flush()
			}
		}
	}
}

// RefreshRate returns the current refresh rate.
func (l *Log) RefreshRate() RefreshRate {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

// SetRefreshRate changes the refresh rate. Switching to RateFast commits the
// pending batch immediately.
func (l *Log) SetRefreshRate(r RefreshRate) {
	l.mu.Lock()
	l.rate = r
	if r.Interval() <= 0 {
		l.flushLocked()
	}
	l.mu.Unlock()

	select {
	case l.rateChanged <- struct{}{}:
	default:
	}
}

// AddFrame admits a received frame.
//
// A numeric frame that completes a numeric partial held by the most recent
// entry, pending or committed, replaces that entry with the merged value and
// is marked Fixed.
func (l *Log) AddFrame(f frame.Frame) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:        uuid.NewString(),
		Time:      l.clock.Now(),
		Direction: DirectionRx,
		Kind:      f.Kind,
		Data:      f.Content,
		HasPrefix: f.HasPrefix(),
	}
	if f.HasPrefix() {
		e.Original = f.Attrs.Prefix + " " + f.Content
	}

	if prev := l.lastLocked(); prev != nil && prev.Direction == DirectionRx && prev.Frame != nil {
		if merged, ok := frame.Repair(*prev.Frame, f); ok {
			l.logger.Debug("Numeric partial repaired",
				"partial", prev.Frame.Raw,
				"value", merged.Content,
			)
			l.dropLastLocked()
			f = merged
			e.Kind = merged.Kind
			e.Data = merged.Content
			e.Fixed = true
		}
	}
	e.Frame = &f

	if l.rate.Interval() <= 0 {
		l.commitLocked([]Entry{e})
	} else {
		l.pending = append(l.pending, e)
	}
	return e
}

// AddSent records a payload written to the device. text is the rendered
// form shown in the log.
func (l *Log) AddSent(data []byte, text string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.flushLocked()
	e := Entry{
		ID:        uuid.NewString(),
		Time:      l.clock.Now(),
		Direction: DirectionTx,
		Data:      text,
		Raw:       append([]byte(nil), data...),
	}
	l.tx += len(data)
	l.commitLocked([]Entry{e})
	return e
}

// AddSystem records a lifecycle message.
func (l *Log) AddSystem(message string, isError bool) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.flushLocked()
	e := Entry{
		ID:        uuid.NewString(),
		Time:      l.clock.Now(),
		Direction: DirectionSystem,
		Data:      message,
		IsError:   isError,
	}
	l.commitLocked([]Entry{e})
	return e
}

// Flush commits the pending batch.
func (l *Log) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
}

// Entries returns a copy of the committed entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Pending returns the number of entries waiting for the next tick.
func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Counters returns the number of characters received and bytes sent since
// the last Clear.
func (l *Log) Counters() (rx, tx int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rx, l.tx
}

// Clear empties the log and resets the counters.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.pending = nil
	l.rx, l.tx = 0, 0
}

func (l *Log) flushLocked() {
	if len(l.pending) == 0 {
		return
	}
	batch := l.pending
	l.pending = nil
	l.commitLocked(batch)
}

func (l *Log) commitLocked(batch []Entry) {
	for _, e := range batch {
		if e.Direction == DirectionRx {
			l.rx += utf8.RuneCountInString(e.Data)
		}
	}
	l.entries = append(l.entries, batch...)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append([]Entry(nil), l.entries[over:]...)
	}
	if l.onCommit != nil {
		l.onCommit(batch)
	}
}

// lastLocked returns the most recent entry, pending or committed.
func (l *Log) lastLocked() *Entry {
	if n := len(l.pending); n > 0 {
		return &l.pending[n-1]
	}
	if n := len(l.entries); n > 0 {
		return &l.entries[n-1]
	}
	return nil
}

func (l *Log) dropLastLocked() {
	if n := len(l.pending); n > 0 {
		l.pending = l.pending[:n-1]
		return
	}
	if n := len(l.entries); n > 0 {
		l.rx -= utf8.RuneCountInString(l.entries[n-1].Data)
		l.entries = l.entries[:n-1]
	}
}
