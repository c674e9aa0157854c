package link

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"i4.energy/across/serialterm/frame"
)

// Session owns one serial link: it opens the device with bounded retries,
// pumps received bytes through a frame.Framer, watches the link while it is
// open and tears everything down on request or on loss.
//
// All methods are safe for concurrent use. Frames and events are delivered
// from the session's goroutines; handlers must not block for long.
type Session struct {
	config  Config
	logger  *slog.Logger
	clock   clock.Clock
	metrics *Metrics
	framer  *frame.Framer

	mu        sync.Mutex
	state     State
	reason    string
	warning   string
	device    *Device
	transport Transport
	// connGen identifies the Connect call allowed to finish opening
	connGen uint64

	readCancel    context.CancelFunc
	readDone      chan struct{}
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}

	// writeMu serialises Send and the keepalive probe
	writeMu sync.Mutex
	// teardownMu serialises Disconnect with the tail of Connect
	teardownMu sync.Mutex

	reading      atomic.Bool
	lastActivity atomic.Int64
}

// New creates a closed Session. It does not touch the device.
func New(config Config) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	s := &Session{
		config:  config,
		logger:  config.logger,
		clock:   config.clock,
		metrics: config.metrics,
		state:   StateClosed,
	}
	if config.device != nil {
		d := *config.device
		s.device = &d
	}
	s.framer = frame.NewFramer(s.dispatch,
		frame.WithClock(config.clock),
		frame.WithFlushDelay(config.flushDelay),
	)
	s.metrics.setState(StateClosed)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:   s.state,
		Err:     s.reason,
		Warning: s.warning,
		Reading: s.reading.Load(),
	}
	if s.device != nil {
		d := *s.device
		st.Device = &d
	}
	return st
}

// IsReading reports whether the read loop is active.
func (s *Session) IsReading() bool {
	return s.reading.Load()
}

// Device returns the selected device, or nil.
func (s *Session) Device() *Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}
	d := *s.device
	return &d
}

// UseDevice selects the device the next Connect opens. The session must be
// closed.
func (s *Session) UseDevice(d Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateClosed {
		return fmt.Errorf("%w: select device while %s", ErrInvalidState, s.state)
	}
	s.device = &d
	return nil
}

// SelectDevice asks the Directory for a device and selects it. When the
// directory returns ErrCancelled the previous selection is kept.
func (s *Session) SelectDevice(ctx context.Context) (Device, error) {
	if s.config.directory == nil {
		return Device{}, ErrDeviceUnavailable
	}
	d, err := s.config.directory.RequestNew(ctx)
	if err != nil {
		return Device{}, err
	}
	if err := s.UseDevice(d); err != nil {
		return Device{}, err
	}
	s.logger.Info("Device selected", "device", d.String())
	return d, nil
}

// Devices lists the devices the Directory reports.
func (s *Session) Devices(ctx context.Context) ([]Device, error) {
	if s.config.directory == nil {
		return nil, ErrDeviceUnavailable
	}
	return s.config.directory.ListAuthorized(ctx)
}

// Connect opens the selected device.
//
// It makes one attempt plus up to the configured number of retries, waiting
// the retry delay before each retry. An attempt fails when the dialer
// rejects the device or when the opened transport does not report itself
// connected. When every attempt fails the session moves to StateError and
// the returned error wraps ErrRetriesExhausted and the last failure.
//
// A failure to start the read loop does not fail Connect; it is reported
// through Status().Warning.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.device == nil {
		s.mu.Unlock()
		return ErrDeviceUnavailable
	}
	if s.state != StateClosed {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, state)
	}
	device := *s.device
	stale := s.transport
	s.transport = nil
	s.warning = ""
	s.connGen++
	gen := s.connGen
	s.setStateLocked(StateOpening, "")
	s.mu.Unlock()

	s.logger.Info("Connecting",
		"device", device.String(),
		"baud_rate", s.config.params.BaudRate,
		"max_retries", s.config.maxRetries,
	)

	if stale != nil && stale.IsConnected() {
		s.logger.Debug("Closing stale transport", "device", device.Name)
		if err := stale.Close(); err != nil {
			s.logger.Warn("Closing stale transport failed", "device", device.Name, "error", err)
		}
		s.wait(ctx, s.config.releaseDelay)
	}

	var (
		lastErr  error
		attempts int
	)
	for attempt := 0; attempt <= s.config.maxRetries; attempt++ {
		if attempt > 0 {
			s.setReason(gen, fmt.Sprintf("retrying (%d/%d): %v", attempt, s.config.maxRetries, lastErr))
			if err := s.wait(ctx, s.config.retryDelay); err != nil {
				lastErr = err
				break
			}
		}
		if s.aborted(gen) {
			return ErrConnectAborted
		}

		attempts++
		s.metrics.connectAttempts.Inc()
		t, err := s.open(ctx, device)
		if err == nil {
			return s.finishConnect(gen, device, t)
		}
		lastErr = err
		s.logger.Warn("Connect attempt failed",
			"device", device.Name,
			"attempt", attempt+1,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}

	return s.failConnect(gen, attempts, lastErr)
}

// open performs one attempt: dial, then check the transport is usable.
func (s *Session) open(ctx context.Context, device Device) (Transport, error) {
	t, err := s.config.dialer.Dial(ctx, device, s.config.params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, device.Name, err)
	}
	if !t.IsConnected() {
		_ = t.Close()
		s.wait(ctx, s.config.releaseDelay)
		return nil, fmt.Errorf("%w: %s", ErrPostOpenValidation, device.Name)
	}
	return t, nil
}

func (s *Session) finishConnect(gen uint64, device Device, t Transport) error {
	s.teardownMu.Lock()
	defer s.teardownMu.Unlock()

	s.mu.Lock()
	if s.state != StateOpening || s.connGen != gen {
		s.mu.Unlock()
		_ = t.Close()
		return ErrConnectAborted
	}
	s.transport = t
	s.setStateLocked(StateOpened, "")
	s.mu.Unlock()

	s.framer.Reset()
	s.touch()

	if err := s.startReading(t); err != nil {
		s.mu.Lock()
		s.warning = err.Error()
		s.mu.Unlock()
		s.logger.Warn("Port open but not reading", "device", device.Name, "error", err)
		s.emit(Event{Message: err.Error(), IsError: true})
	}
	s.startMonitor()

	s.logger.Info("Connected", "device", device.String())
	s.emit(Event{Message: fmt.Sprintf("connected to %s", device)})
	return nil
}

func (s *Session) failConnect(gen uint64, attempts int, lastErr error) error {
	if lastErr == nil {
		lastErr = ErrOpenFailed
	}

	s.mu.Lock()
	if s.state != StateOpening || s.connGen != gen {
		s.mu.Unlock()
		return ErrConnectAborted
	}
	stale := s.transport
	s.transport = nil
	reason := fmt.Sprintf("connection failed after %d attempts: %v", attempts, lastErr)
	s.setStateLocked(StateError, reason)
	s.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}

	s.logger.Error("Connect failed", "error", lastErr, "attempts", attempts)
	s.emit(Event{Message: reason, IsError: true})
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// Disconnect stops reading and monitoring, closes the transport and forces
// the session to StateClosed. Each step is best-effort and bounded by the
// close timeout; failures are logged, never returned. Calling Disconnect on
// a closed session is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	s.teardownMu.Lock()
	defer s.teardownMu.Unlock()

	s.disconnectLocked(ctx)
	return nil
}

// cleanupLost tears down the connection generation gen after it was lost.
// It does nothing when the session has since been disconnected or
// reconnected.
func (s *Session) cleanupLost(gen uint64) {
	s.teardownMu.Lock()
	defer s.teardownMu.Unlock()

	s.mu.Lock()
	current := s.connGen == gen && s.state == StateError
	s.mu.Unlock()
	if !current {
		s.logger.Debug("Skipping cleanup of superseded connection", "generation", gen)
		return
	}
	s.disconnectLocked(context.Background())
}

// disconnectLocked does the work of Disconnect. The caller holds teardownMu.
func (s *Session) disconnectLocked(ctx context.Context) {
	s.reading.Store(false)
	s.stopMonitor()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if s.state == StateOpening {
		s.setStateLocked(StateError, ErrConnectAborted.Error())
	}
	s.connGen++
	t := s.transport
	readCancel, readDone := s.readCancel, s.readDone
	s.readCancel, s.readDone = nil, nil
	s.mu.Unlock()

	s.framer.Stop()
	if readCancel != nil {
		readCancel()
	}

	var errs error
	released := true
	if t != nil {
		if err := s.closeTransport(ctx, t); err != nil {
			errs = multierr.Append(errs, err)
			released = false
		}
	}
	if readDone != nil {
		if err := s.await(ctx, readDone, "read loop"); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		s.logger.Warn("Disconnect finished with errors", "error", errs)
	}

	s.mu.Lock()
	if released && s.transport == t {
		s.transport = nil
	}
	s.warning = ""
	s.setStateLocked(StateClosed, "")
	s.mu.Unlock()

	s.metrics.disconnects.Inc()
	s.logger.Info("Disconnected")
	s.emit(Event{Message: "port disconnected"})
}

// handleDisconnection records an unexpected loss of the link and schedules
// a teardown. It is ignored unless the session is open.
func (s *Session) handleDisconnection(cause error) {
	s.mu.Lock()
	if s.state != StateOpened {
		s.mu.Unlock()
		return
	}
	reason := fmt.Sprintf("connection lost: %v", cause)
	s.setStateLocked(StateError, reason)
	gen := s.connGen
	s.mu.Unlock()

	s.reading.Store(false)
	s.logger.Warn("Connection lost", "error", cause)
	s.emit(Event{Message: reason, IsError: true})

	go s.cleanupLost(gen)
}

func (s *Session) closeTransport(ctx context.Context, t Transport) error {
	errc := make(chan error, 1)
	go func() {
		errc <- t.Close()
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("close transport: %w", err)
		}
		return nil
	case <-s.clock.After(s.config.closeTimeout):
		return fmt.Errorf("close transport: timed out after %v", s.config.closeTimeout)
	case <-ctx.Done():
		return fmt.Errorf("close transport: %w", ctx.Err())
	}
}

func (s *Session) await(ctx context.Context, done <-chan struct{}, what string) error {
	select {
	case <-done:
		return nil
	case <-s.clock.After(s.config.closeTimeout):
		return fmt.Errorf("stop %s: timed out after %v", what, s.config.closeTimeout)
	case <-ctx.Done():
		return fmt.Errorf("stop %s: %w", what, ctx.Err())
	}
}

// wait sleeps on the session clock, returning early with the context error.
func (s *Session) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := s.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) aborted(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateOpening || s.connGen != gen
}

func (s *Session) setReason(gen uint64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateOpening && s.connGen == gen {
		s.reason = reason
	}
}

// setStateLocked moves to the given state and reports whether the move was
// allowed. Entering StateClosed clears the reason; entering StateError
// requires one.
func (s *Session) setStateLocked(to State, reason string) bool {
	if s.state == to {
		return true
	}
	if !canTransition(s.state, to) {
		s.logger.Error("Invalid state transition", "from", s.state.String(), "to", to.String())
		return false
	}
	switch to {
	case StateClosed, StateOpened, StateOpening:
		s.reason = ""
	case StateError:
		if reason == "" {
			reason = "unknown error"
		}
		s.reason = reason
	}
	s.logger.Debug("State changed", "from", s.state.String(), "to", to.String(), "reason", s.reason)
	s.state = to
	s.metrics.setState(to)
	if s.config.onState != nil {
		s.config.onState(to, s.reason)
	}
	return true
}

func (s *Session) dispatch(fr frame.Frame) {
	s.metrics.frames.WithLabelValues(fr.Kind.String()).Inc()
	if s.config.onFrame != nil {
		s.config.onFrame(fr)
	}
}

func (s *Session) emit(ev Event) {
	if s.config.onEvent != nil {
		s.config.onEvent(ev)
	}
}

func (s *Session) touch() {
	s.lastActivity.Store(s.clock.Now().UnixNano())
}

func (s *Session) idle() time.Duration {
	return s.clock.Since(time.Unix(0, s.lastActivity.Load()))
}
