package link

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// inputResetter is implemented by transports that can drop bytes queued
// before the read loop starts.
type inputResetter interface {
	ResetInputBuffer() error
}

// startReading launches the read loop for t.
func (s *Session) startReading(t Transport) error {
	if r, ok := t.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return fmt.Errorf("%w: %w", ErrReadPipelineStart, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.readCancel = cancel
	s.readDone = done
	s.mu.Unlock()

	s.reading.Store(true)
	go s.readLoop(ctx, t, done)
	return nil
}

// readLoop pumps bytes from t into the framer until reading stops or ctx is
// cancelled. Bytes read after cancellation are dropped.
//
// EOF means the device went away. Any other error is logged and the read is
// retried after a short pause.
func (s *Session) readLoop(ctx context.Context, t Transport, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, s.config.readBufferSize)
	for s.reading.Load() {
		n, err := t.Read(buf)
		if ctx.Err() != nil {
			return
		}
		if n > 0 {
			s.touch()
			s.metrics.rxBytes.Add(float64(n))
			s.framer.Feed(buf[:n])
		}
		if err == nil {
			continue
		}
		if !s.reading.Load() {
			return
		}
		if errors.Is(err, io.EOF) {
			s.handleDisconnection(fmt.Errorf("%w: %w", ErrUnexpectedDisconnect, err))
			return
		}

		s.metrics.readErrors.Inc()
		s.logger.Warn("Read failed", "error", fmt.Errorf("%w: %w", ErrTransportRead, err))

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.config.readRetryDelay):
		}
	}
}
