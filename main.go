package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"i4.energy/across/serialterm/frame"
	"i4.energy/across/serialterm/link"
	"i4.energy/across/serialterm/logbook"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML configuration file")
	flag.String("serial-port", "", "Serial port to open (default: first USB port found)")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.Int("data-bits", 8, "Data bits (5-8)")
	flag.String("stop-bits", "1", "Stop bits (1, 1.5, 2)")
	flag.String("parity", "none", "Parity (None, Odd, Even, Mark, Space)")
	flag.Int("max-retries", link.DefaultMaxRetries, "Connect attempts after the first one")
	flag.Duration("idle-timeout", link.DefaultIdleTimeout, "Idle time before a keepalive byte is sent (0 disables)")
	flag.String("bind-address", "", "Bind address for the HTTP server (empty disables it)")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("rx-format", "ascii", "Display format for received data (ascii, hex)")
	flag.String("tx-format", "ascii", "Input format for sent data (ascii, hex)")
	flag.String("refresh-rate", "normal", "Log refresh rate (slow, normal, fast)")
	flag.String("lang", "en", "Console language (en, zh)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := run(config, logger, os.Stdin, os.Stdout); err != nil {
		logger.Error("Terminal failed", "error", err)
		os.Exit(1)
	}
}

func run(config *Config, logger *slog.Logger, in io.Reader, out io.Writer) error {
	params, err := config.LinkParams()
	if err != nil {
		return fmt.Errorf("line settings: %w", err)
	}
	rate, err := logbook.ParseRefreshRate(config.RefreshRate)
	if err != nil {
		return err
	}
	rxFormat, err := ParsePayloadFormat(config.RxFormat)
	if err != nil {
		return err
	}
	txFormat, err := ParsePayloadFormat(config.TxFormat)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	history, err := logbook.NewHistory(logbook.DefaultHistorySize)
	if err != nil {
		return err
	}
	console := NewConsole(out, config.Language, rxFormat)
	book := logbook.New(
		logbook.WithRefreshRate(rate),
		logbook.WithLogger(logger.With("component", "logbook")),
		logbook.WithCommitHook(console.Render),
	)

	linkConfig, err := link.NewConfigBuilder().
		WithDialer(link.SerialDialer{ReadTimeout: 200 * time.Millisecond}).
		WithDirectory(link.SerialDirectory{Preferred: config.SerialPort}).
		WithParams(params).
		WithMaxRetries(config.MaxRetries).
		WithIdleTimeout(config.IdleTimeout).
		WithLogger(logger.With("component", "link")).
		WithMetrics(link.NewMetrics(registry)).
		WithFrameHandler(func(f frame.Frame) { book.AddFrame(f) }).
		WithEventHandler(func(ev link.Event) { book.AddSystem(ev.Message, ev.IsError) }).
		Build()
	if err != nil {
		return fmt.Errorf("link config: %w", err)
	}

	session, err := link.New(linkConfig)
	if err != nil {
		return err
	}

	term := &Terminal{
		Session:  session,
		Log:      book,
		History:  history,
		Console:  console,
		Logger:   logger.With("component", "terminal"),
		txFormat: txFormat,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return book.Run(ctx)
	})

	if config.BindAddress != "" {
		httpServer := &http.Server{
			Addr: config.BindAddress,
			Handler: &Server{
				Logger:   logger.With("component", "server"),
				Terminal: term,
				Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			},
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", "address", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("Closing HTTP server")
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		defer cancel()
		if err := term.connect(ctx, nil); err != nil {
			logger.Warn("Initial connect failed", "error", err)
			console.Error(err)
		}
		return term.Run(ctx, lines)
	})

	err = g.Wait()

	logger.Info("Closing serial connection")
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*link.DefaultCloseTimeout)
	defer closeCancel()
	if derr := session.Disconnect(closeCtx); derr != nil {
		logger.Error("Failed to close serial connection", "error", derr)
	}
	book.Flush()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
