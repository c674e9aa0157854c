package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"i4.energy/across/serialterm/link"
)

// Config holds the application configuration
type Config struct {
	// SerialPort is the port to open (e.g. "/dev/ttyUSB0"). When empty the
	// first USB port found is used.
	SerialPort string
	// BaudRate, DataBits, StopBits and Parity are applied on every open
	BaudRate int
	DataBits int
	StopBits string
	Parity   string
	// MaxRetries is the number of connect attempts after the first one
	MaxRetries int
	// IdleTimeout is how long the link may stay silent before a keepalive
	// byte is sent
	IdleTimeout time.Duration
	// BindAddress is the address the HTTP server listens on. Empty disables it.
	BindAddress string
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// RxFormat and TxFormat select "ascii" or "hex" rendering
	RxFormat string
	TxFormat string
	// RefreshRate is the log refresh rate: "slow", "normal" or "fast"
	RefreshRate string
	// Language selects the console language (e.g. "en", "zh")
	Language string
}

// fileConfig is the TOML layout of the configuration file.
type fileConfig struct {
	SerialPort  string `toml:"serial_port"`
	BaudRate    int    `toml:"baud_rate"`
	DataBits    int    `toml:"data_bits"`
	StopBits    string `toml:"stop_bits"`
	Parity      string `toml:"parity"`
	MaxRetries  int    `toml:"max_retries"`
	IdleTimeout string `toml:"idle_timeout"`
	BindAddress string `toml:"bind_address"`
	LogLevel    string `toml:"log_level"`
	RxFormat    string `toml:"rx_format"`
	TxFormat    string `toml:"tx_format"`
	RefreshRate string `toml:"refresh_rate"`
	Language    string `toml:"language"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BaudRate = 115200
		c.DataBits = 8
		c.StopBits = "1"
		c.Parity = "none"
		c.MaxRetries = link.DefaultMaxRetries
		c.IdleTimeout = link.DefaultIdleTimeout
		c.LogLevel = "info"
		c.RxFormat = "ascii"
		c.TxFormat = "ascii"
		c.RefreshRate = "normal"
		c.Language = "en"
		return nil
	}
}

// WithFile overlays the keys present in a TOML file. An empty path is
// ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}

		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
		}

		if meta.IsDefined("serial_port") {
			c.SerialPort = strings.TrimSpace(raw.SerialPort)
		}
		if meta.IsDefined("baud_rate") {
			c.BaudRate = raw.BaudRate
		}
		if meta.IsDefined("data_bits") {
			c.DataBits = raw.DataBits
		}
		if meta.IsDefined("stop_bits") {
			c.StopBits = raw.StopBits
		}
		if meta.IsDefined("parity") {
			c.Parity = raw.Parity
		}
		if meta.IsDefined("max_retries") {
			c.MaxRetries = raw.MaxRetries
		}
		if meta.IsDefined("idle_timeout") {
			d, err := time.ParseDuration(raw.IdleTimeout)
			if err != nil {
				return fmt.Errorf("load config %s: idle_timeout: %w", path, err)
			}
			c.IdleTimeout = d
		}
		if meta.IsDefined("bind_address") {
			c.BindAddress = strings.TrimSpace(raw.BindAddress)
		}
		if meta.IsDefined("log_level") {
			c.LogLevel = raw.LogLevel
		}
		if meta.IsDefined("rx_format") {
			c.RxFormat = raw.RxFormat
		}
		if meta.IsDefined("tx_format") {
			c.TxFormat = raw.TxFormat
		}
		if meta.IsDefined("refresh_rate") {
			c.RefreshRate = raw.RefreshRate
		}
		if meta.IsDefined("language") {
			c.Language = raw.Language
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if parity := os.Getenv("PARITY"); parity != "" {
			c.Parity = parity
		}

		if retries := os.Getenv("MAX_RETRIES"); retries != "" {
			if n, err := strconv.Atoi(retries); err == nil {
				c.MaxRetries = n
			}
		}

		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if lang := os.Getenv("TERM_LANGUAGE"); lang != "" {
			c.Language = lang
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			v := f.Value.String()
			switch f.Name {
			case "serial-port":
				c.SerialPort = v
			case "baud-rate":
				if b, e := strconv.Atoi(v); e == nil {
					c.BaudRate = b
				}
			case "data-bits":
				if b, e := strconv.Atoi(v); e == nil {
					c.DataBits = b
				}
			case "stop-bits":
				c.StopBits = v
			case "parity":
				c.Parity = v
			case "max-retries":
				if n, e := strconv.Atoi(v); e == nil {
					c.MaxRetries = n
				}
			case "idle-timeout":
				d, e := time.ParseDuration(v)
				if e != nil && err == nil {
					err = fmt.Errorf("flag -idle-timeout: %w", e)
				}
				c.IdleTimeout = d
			case "bind-address":
				c.BindAddress = v
			case "log-level":
				c.LogLevel = v
			case "rx-format":
				c.RxFormat = v
			case "tx-format":
				c.TxFormat = v
			case "refresh-rate":
				c.RefreshRate = v
			case "lang":
				c.Language = v
			}
		})
		return err
	}
}

// LinkParams converts the line settings to link parameters.
func (c *Config) LinkParams() (link.Params, error) {
	parity, err := link.ParseParity(c.Parity)
	if err != nil {
		return link.Params{}, err
	}
	stopBits, err := link.ParseStopBits(c.StopBits)
	if err != nil {
		return link.Params{}, err
	}
	if c.BaudRate <= 0 {
		return link.Params{}, fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return link.Params{}, fmt.Errorf("invalid data bits %d", c.DataBits)
	}
	return link.Params{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: stopBits,
		Parity:   parity,
	}, nil
}
