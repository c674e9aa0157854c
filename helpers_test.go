package main

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"i4.energy/across/serialterm/frame"
	"i4.energy/across/serialterm/link"
	"i4.energy/across/serialterm/link/linktest"
	"i4.energy/across/serialterm/logbook"
)

// syncBuffer is a bytes.Buffer safe for the console's concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestTerminal wires a Terminal to a TestTransport. When connected is
// true the session is already open.
func newTestTerminal(t *testing.T, connected bool) (*Terminal, *link.TestTransport, *syncBuffer) {
	t.Helper()

	ctrl := gomock.NewController(t)
	tt := link.NewTestTransport()
	dialer := linktest.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any(), gomock.Any()).Return(tt, nil).AnyTimes()

	logger := slog.New(slog.DiscardHandler)
	out := &syncBuffer{}
	console := NewConsole(out, "en", FormatASCII)
	book := logbook.New(
		logbook.WithRefreshRate(logbook.RateFast),
		logbook.WithLogger(logger),
		logbook.WithCommitHook(console.Render),
	)
	history, err := logbook.NewHistory(logbook.DefaultHistorySize)
	require.NoError(t, err)

	config, err := link.NewConfigBuilder().
		WithDialer(dialer).
		WithDevice(link.Device{Name: "/dev/ttyUSB0"}).
		WithLogger(logger).
		WithFrameHandler(func(f frame.Frame) { book.AddFrame(f) }).
		WithEventHandler(func(ev link.Event) { book.AddSystem(ev.Message, ev.IsError) }).
		Build()
	require.NoError(t, err)
	session, err := link.New(config)
	require.NoError(t, err)

	term := &Terminal{
		Session: session,
		Log:     book,
		History: history,
		Console: console,
		Logger:  logger,
	}
	if connected {
		require.NoError(t, session.Connect(context.Background()))
		t.Cleanup(func() { session.Disconnect(context.Background()) })
	}
	return term, tt, out
}
