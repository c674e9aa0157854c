package link

import (
	"context"
	"fmt"
)

// keepAliveByte is written when the link has been idle too long. Devices on
// the other end ignore a NUL.
var keepAliveByte = []byte{0x00}

func (s *Session) startMonitor() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.monitorCancel = cancel
	s.monitorDone = done
	s.mu.Unlock()

	go s.monitor(ctx, done)
}

// stopMonitor cancels the monitor and waits, bounded by the close timeout,
// for it to return.
func (s *Session) stopMonitor() {
	s.mu.Lock()
	cancel, done := s.monitorCancel, s.monitorDone
	s.monitorCancel, s.monitorDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if err := s.await(context.Background(), done, "monitor"); err != nil {
		s.logger.Warn("Monitor did not stop", "error", err)
	}
}

func (s *Session) monitor(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := s.clock.Ticker(s.config.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkLink()
		}
	}
}

// checkLink runs one monitor tick: the transport must still report itself
// connected and answer a probe, and an idle link gets a keepalive byte.
func (s *Session) checkLink() {
	s.mu.Lock()
	if s.state != StateOpened || s.transport == nil {
		s.mu.Unlock()
		return
	}
	t := s.transport
	s.mu.Unlock()

	if !t.IsConnected() {
		s.handleDisconnection(fmt.Errorf("%w: transport closed", ErrUnexpectedDisconnect))
		return
	}
	if err := t.Probe(); err != nil {
		s.handleDisconnection(fmt.Errorf("%w: probe: %w", ErrUnexpectedDisconnect, err))
		return
	}

	if s.config.idleTimeout <= 0 || s.idle() <= s.config.idleTimeout {
		return
	}
	if err := s.keepAlive(t); err != nil {
		s.handleDisconnection(fmt.Errorf("%w: keepalive: %w", ErrUnexpectedDisconnect, err))
	}
}

func (s *Session) keepAlive(t Transport) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := t.Write(keepAliveByte); err != nil {
		return err
	}
	s.touch()
	s.metrics.keepAlives.Inc()
	s.logger.Debug("Keepalive sent", "idle_timeout", s.config.idleTimeout)
	return nil
}
