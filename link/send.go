package link

import (
	"context"
	"fmt"
	"io"
)

// Send writes data to the open link.
//
// It returns ErrNotConnected unless the session is open. Write failures are
// wrapped in ErrTransportWrite and leave the session state unchanged; the
// monitor decides whether the link is gone.
func (s *Session) Send(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	state, t := s.state, s.transport
	s.mu.Unlock()
	if state != StateOpened || t == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := t.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.metrics.writeErrors.Inc()
		return fmt.Errorf("%w: %w", ErrTransportWrite, err)
	}

	s.touch()
	s.metrics.txBytes.Add(float64(n))
	return nil
}
