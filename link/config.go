package link

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"i4.energy/across/serialterm/frame"
)

// Lifecycle defaults.
const (
	DefaultMaxRetries      = 2
	DefaultRetryDelay      = 800 * time.Millisecond
	DefaultReleaseDelay    = 300 * time.Millisecond
	DefaultCloseTimeout    = 3 * time.Second
	DefaultMonitorInterval = 3 * time.Second
	DefaultIdleTimeout     = 30 * time.Second
	DefaultReadRetryDelay  = 100 * time.Millisecond
	DefaultReadBufferSize  = 1024
)

// Event is a system-level notification from the session, suitable for the
// log sink.
type Event struct {
	Message string
	IsError bool
}

// Config holds the Session configuration. Use NewConfigBuilder to create one.
type Config struct {
	dialer    Dialer
	directory Directory
	device    *Device
	params    Params

	maxRetries      int
	retryDelay      time.Duration
	releaseDelay    time.Duration
	closeTimeout    time.Duration
	monitorInterval time.Duration
	idleTimeout     time.Duration
	flushDelay      time.Duration
	readRetryDelay  time.Duration
	readBufferSize  int

	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics

	onFrame func(frame.Frame)
	onEvent func(Event)
	onState func(State, string)
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if c.maxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	if c.retryDelay <= c.releaseDelay {
		return fmt.Errorf("%w: retry delay %v must exceed release delay %v",
			ErrInvalidConfig, c.retryDelay, c.releaseDelay)
	}
	if c.monitorInterval <= 0 || c.closeTimeout <= 0 || c.readBufferSize <= 0 {
		return fmt.Errorf("%w: intervals and buffer size must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if c.flushDelay <= 0 {
		c.flushDelay = frame.DefaultFlushDelay
	}
}

// ConfigBuilder assembles a Config with defaults for every unset field.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder preloaded with the lifecycle defaults.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: Config{
		params:          DefaultParams(),
		maxRetries:      DefaultMaxRetries,
		retryDelay:      DefaultRetryDelay,
		releaseDelay:    DefaultReleaseDelay,
		closeTimeout:    DefaultCloseTimeout,
		monitorInterval: DefaultMonitorInterval,
		idleTimeout:     DefaultIdleTimeout,
		flushDelay:      frame.DefaultFlushDelay,
		readRetryDelay:  DefaultReadRetryDelay,
		readBufferSize:  DefaultReadBufferSize,
	}}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithDirectory(d Directory) *ConfigBuilder {
	b.config.directory = d
	return b
}

// WithDevice preselects the device Connect opens.
func (b *ConfigBuilder) WithDevice(d Device) *ConfigBuilder {
	b.config.device = &d
	return b
}

func (b *ConfigBuilder) WithParams(p Params) *ConfigBuilder {
	b.config.params = p
	return b
}

// WithMaxRetries sets the number of attempts made after the first one.
func (b *ConfigBuilder) WithMaxRetries(n int) *ConfigBuilder {
	b.config.maxRetries = n
	return b
}

// WithRetryDelay sets the wait before each retry.
func (b *ConfigBuilder) WithRetryDelay(d time.Duration) *ConfigBuilder {
	b.config.retryDelay = d
	return b
}

// WithReleaseDelay sets the wait after force-closing a port, giving the
// device time to release it.
func (b *ConfigBuilder) WithReleaseDelay(d time.Duration) *ConfigBuilder {
	b.config.releaseDelay = d
	return b
}

// WithCloseTimeout bounds how long Disconnect waits for the transport.
func (b *ConfigBuilder) WithCloseTimeout(d time.Duration) *ConfigBuilder {
	b.config.closeTimeout = d
	return b
}

func (b *ConfigBuilder) WithMonitorInterval(d time.Duration) *ConfigBuilder {
	b.config.monitorInterval = d
	return b
}

// WithIdleTimeout sets how long the link may stay silent before the monitor
// sends a keepalive byte.
func (b *ConfigBuilder) WithIdleTimeout(d time.Duration) *ConfigBuilder {
	b.config.idleTimeout = d
	return b
}

func (b *ConfigBuilder) WithFlushDelay(d time.Duration) *ConfigBuilder {
	b.config.flushDelay = d
	return b
}

func (b *ConfigBuilder) WithReadRetryDelay(d time.Duration) *ConfigBuilder {
	b.config.readRetryDelay = d
	return b
}

func (b *ConfigBuilder) WithReadBufferSize(n int) *ConfigBuilder {
	b.config.readBufferSize = n
	return b
}

func (b *ConfigBuilder) WithClock(c clock.Clock) *ConfigBuilder {
	b.config.clock = c
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

func (b *ConfigBuilder) WithMetrics(m *Metrics) *ConfigBuilder {
	b.config.metrics = m
	return b
}

// WithFrameHandler sets the consumer called once per frame, in stream order.
func (b *ConfigBuilder) WithFrameHandler(fn func(frame.Frame)) *ConfigBuilder {
	b.config.onFrame = fn
	return b
}

// WithEventHandler sets the consumer of system events.
func (b *ConfigBuilder) WithEventHandler(fn func(Event)) *ConfigBuilder {
	b.config.onEvent = fn
	return b
}

// WithStateHandler sets a callback invoked on every state change, with the
// session lock held. It must not call back into the Session.
func (b *ConfigBuilder) WithStateHandler(fn func(State, string)) *ConfigBuilder {
	b.config.onState = fn
	return b
}

// Build validates the configuration and fills in the remaining defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
