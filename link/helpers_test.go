package link_test

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"i4.energy/across/serialterm/frame"
	"i4.energy/across/serialterm/link"
)

// recorder collects everything a Session reports through its handlers.
type recorder struct {
	mu     sync.Mutex
	states []link.State
	events []link.Event
	frames []frame.Frame
}

func (r *recorder) onState(s link.State, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) onEvent(ev link.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) onFrame(f frame.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recorder) States() []link.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]link.State(nil), r.states...)
}

func (r *recorder) Events() []link.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]link.Event(nil), r.events...)
}

func (r *recorder) Frames() []frame.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame.Frame(nil), r.frames...)
}

var testDevice = link.Device{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523"}

// newSession builds a session on testDevice with short retry timings.
func newSession(t *testing.T, dialer link.Dialer, configure ...func(*link.ConfigBuilder)) (*link.Session, *recorder) {
	t.Helper()

	rec := &recorder{}
	b := link.NewConfigBuilder().
		WithDialer(dialer).
		WithDevice(testDevice).
		WithRetryDelay(20 * time.Millisecond).
		WithReleaseDelay(5 * time.Millisecond).
		WithLogger(slog.New(slog.DiscardHandler)).
		WithStateHandler(rec.onState).
		WithEventHandler(rec.onEvent).
		WithFrameHandler(rec.onFrame)
	for _, fn := range configure {
		fn(b)
	}

	config, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	s, err := link.New(config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}
	return s, rec
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// advanceUntil moves the mock clock forward one step at a time until cond
// holds. Goroutines that create tickers after an Add would miss a single
// large step, so the clock is advanced in small increments.
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		mock.Add(step)
		time.Sleep(time.Millisecond)
	}
}

func containsSequence(states []link.State, want ...link.State) bool {
	i := 0
	for _, s := range states {
		if i < len(want) && s == want[i] {
			i++
		}
	}
	return i == len(want)
}

// logBuffer collects slog output written from several goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
