package link

import (
	"bytes"
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking serial transport
// using channels. Reads block until data is queued with SendData, the
// transport is closed or the device hangs up, like a real port would.
type TestTransport struct {
	mu        sync.Mutex
	readChan  chan []byte
	closed    bool
	connected bool
	written   bytes.Buffer

	writeErr error
	probeErr error
	resetErr error
}

// NewTestTransport creates a connected test transport.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan:  make(chan []byte, 10),
		connected: true,
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	return t.written.Write(p)
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.connected = false
	close(t.readChan)
	return nil
}

func (t *TestTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *TestTransport) Probe() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.probeErr
}

func (t *TestTransport) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resetErr
}

// FailWrites makes every following Write return err. A nil err restores
// normal writes.
func (t *TestTransport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// FailProbe makes Probe return err.
func (t *TestTransport) FailProbe(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probeErr = err
}

// FailReset makes ResetInputBuffer return err.
func (t *TestTransport) FailReset(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetErr = err
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the device.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Unplug makes the transport report itself disconnected without failing
// pending reads, the way a vanished USB adapter looks to the monitor.
func (t *TestTransport) Unplug() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

// Hangup ends the read stream with io.EOF.
func (t *TestTransport) Hangup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.readChan)
	}
}

// Written returns a copy of every byte written so far.
func (t *TestTransport) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.written.Bytes())
}

// Closed reports whether Close or Hangup was called.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
