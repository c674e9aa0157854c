package link

import "errors"

var (
	// ErrNoDialer is returned when a Session is configured without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// open the device.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrInvalidConfig is returned by ConfigBuilder.Build when timing or
	// retry settings are inconsistent.
	ErrInvalidConfig = errors.New("invalid link config")

	// ErrDeviceUnavailable is returned by Connect when no device has been
	// selected or the directory denies access to it.
	ErrDeviceUnavailable = errors.New("no device selected")

	// ErrCancelled is returned by a Directory when no device was chosen.
	ErrCancelled = errors.New("device selection cancelled")

	// ErrOpenFailed wraps a transport that rejected the line parameters or
	// reported the port as busy.
	ErrOpenFailed = errors.New("open failed")

	// ErrPostOpenValidation is returned when the port opened but does not
	// report itself as connected.
	ErrPostOpenValidation = errors.New("port not readable/writable after open")

	// ErrReadPipelineStart is a non-fatal warning: the port is open but the
	// read loop could not be started.
	ErrReadPipelineStart = errors.New("read pipeline start failed")

	// ErrTransportRead wraps errors returned by Transport.Read. The read
	// loop logs them and keeps reading.
	ErrTransportRead = errors.New("transport read error")

	// ErrTransportWrite wraps errors returned by Transport.Write. It is
	// returned to the caller of Send and does not change the session state.
	ErrTransportWrite = errors.New("transport write error")

	// ErrUnexpectedDisconnect is the cause reported when the monitor or the
	// read loop detects that the link went away.
	ErrUnexpectedDisconnect = errors.New("unexpected disconnect")

	// ErrRetriesExhausted is returned by Connect when every attempt failed.
	ErrRetriesExhausted = errors.New("connection retries exhausted")

	// ErrNotConnected is returned by Send when the session is not open.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidState is returned by Connect when the session is not closed.
	ErrInvalidState = errors.New("invalid session state")

	// ErrConnectAborted is returned by Connect when Disconnect ran while the
	// attempt was still in progress.
	ErrConnectAborted = errors.New("connect aborted")
)
