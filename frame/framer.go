package frame

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultFlushDelay is how long an unterminated line may sit in the pending
// buffer before it is classified as-is.
const DefaultFlushDelay = time.Second

// Framer accumulates raw bytes from a stream and emits classified frames.
//
// Bytes that do not yet form a terminated line are kept in a pending buffer
// until more data arrives. Each Feed that leaves pending bytes behind
// (re)arms a flush timer; when the timer fires before the next Feed the
// pending bytes are classified through the same rules and emitted.
//
// Frames are emitted in stream order, one emit call per frame, while the
// Framer's lock is held: emit must not call back into the Framer.
type Framer struct {
	mu      sync.Mutex
	pending []byte
	emit    func(Frame)

	clock clock.Clock
	delay time.Duration
	timer *clock.Timer
	// gen invalidates a flush whose timer fired while a Feed held the lock
	gen uint64
}

// FramerOption configures a Framer.
type FramerOption func(*Framer)

// WithClock sets the clock used for the flush timer.
func WithClock(c clock.Clock) FramerOption {
	return func(f *Framer) {
		f.clock = c
	}
}

// WithFlushDelay sets the flush delay. Non-positive values keep the default.
func WithFlushDelay(d time.Duration) FramerOption {
	return func(f *Framer) {
		if d > 0 {
			f.delay = d
		}
	}
}

// NewFramer creates a Framer that hands every frame to emit.
func NewFramer(emit func(Frame), opts ...FramerOption) *Framer {
	f := &Framer{
		emit:  emit,
		clock: clock.New(),
		delay: DefaultFlushDelay,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Feed appends data to the pending buffer and emits every complete line.
func (f *Framer) Feed(data []byte) {
	if len(data) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelTimerLocked()

	buf := append(f.pending, data...)
	frames, remainder := Extract(buf)
	f.pending = remainder
	for _, fr := range frames {
		f.emit(fr)
	}

	if len(f.pending) > 0 {
		f.armTimerLocked()
	}
}

// Flush classifies and emits whatever is pending, terminated or not, and
// empties the pending buffer.
func (f *Framer) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelTimerLocked()
	f.flushLocked()
}

// Reset discards pending bytes and cancels the flush timer.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelTimerLocked()
	f.pending = nil
}

// Stop cancels the flush timer and keeps pending bytes untouched.
func (f *Framer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelTimerLocked()
}

// Pending returns a copy of the bytes that have not been emitted yet.
func (f *Framer) Pending() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return nil
	}
	out := make([]byte, len(f.pending))
	copy(out, f.pending)
	return out
}

func (f *Framer) flushLocked() {
	if len(f.pending) == 0 {
		return
	}
	frames := ExtractAll(f.pending)
	f.pending = nil
	for _, fr := range frames {
		f.emit(fr)
	}
}

func (f *Framer) armTimerLocked() {
	f.gen++
	gen := f.gen
	f.timer = f.clock.AfterFunc(f.delay, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if gen != f.gen {
			return
		}
		f.timer = nil
		f.flushLocked()
	})
}

func (f *Framer) cancelTimerLocked() {
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
