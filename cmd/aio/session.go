package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/aio/internal/config"
	"github.com/bamsammich/aio/internal/event"
	"github.com/bamsammich/aio/internal/platform"
	"github.com/bamsammich/aio/internal/service"
	"github.com/bamsammich/aio/internal/stats"
	"github.com/bamsammich/aio/internal/ui"
)

// session is one CLI invocation's service plus its logging and presenter.
type session struct {
	ctx  context.Context
	svc  *service.Service
	errW io.Writer

	quiet     bool
	presenter ui.Presenter
	events    chan event.Event

	presenterWg sync.WaitGroup
	cleanup     []func()
}

// openSession loads the config file, configures logging and starts a
// service. verify may be nil for commands without a --verify flag.
func openSession(cmd *cobra.Command, g *globalFlags, verify *bool) (*session, error) {
	// Load optional config file.
	cfg, cfgErr := config.Load()

	// Apply config defaults for flags not explicitly set on CLI.
	applyConfigDefaults(cmd, cfg.Defaults, g, verify)

	method, err := platform.ParseMethod(g.method)
	if err != nil {
		return nil, fmt.Errorf("invalid --method: %w", err)
	}

	// Parse bandwidth limit.
	var bwLimit int64
	if g.bwLimitStr != "" {
		bwLimit, err = config.ParseSize(g.bwLimitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}

	s := &session{errW: cmd.ErrOrStderr(), quiet: g.quiet}

	// Configure logging.
	logLevel := slog.LevelInfo
	switch {
	case g.verbose:
		logLevel = slog.LevelDebug
	case g.quiet:
		logLevel = slog.LevelWarn
	case cfg.Defaults.LogLevel != nil:
		logLevel, err = config.ParseLevel(*cfg.Defaults.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("config log_level: %w", err)
		}
	}
	textHandler := slog.NewTextHandler(s.errW, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if g.logFile != "" {
		lf, lfErr := os.Create(g.logFile)
		if lfErr != nil {
			return nil, fmt.Errorf("open log file: %w", lfErr)
		}
		s.cleanup = append(s.cleanup, func() { lf.Close() })
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	if cfgErr != nil {
		slog.Warn("failed to load config", "error", cfgErr)
	}

	// Set up context with signal handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	s.ctx = ctx
	s.cleanup = append(s.cleanup, stop)

	// Create events channel.
	s.events = make(chan event.Event, 256)

	svc, err := service.New(service.Config{
		Method:  method,
		BWLimit: bwLimit,
		Events:  s.events,
		Logger:  logger,
	})
	if err != nil {
		s.runCleanup()
		return nil, err
	}
	s.svc = svc

	if svc.Method() != method {
		slog.Warn("requested I/O method unavailable", "requested", method, "using", svc.Method())
	}

	// When --log is set, tee events through a logging goroutine
	// that writes structured records before forwarding to the presenter.
	presenterEvents := (<-chan event.Event)(s.events)
	if g.logFile != "" {
		teed := make(chan event.Event, 256)
		go func() {
			for ev := range s.events {
				logEvent(ev)
				teed <- ev
			}
			close(teed)
		}()
		presenterEvents = teed
	}

	s.presenter = ui.NewPresenter(ui.Config{
		Writer:  s.errW,
		Stats:   stats.ReaderFunc(svc.Stats),
		Quiet:   g.quiet,
		Verbose: g.verbose,
	})
	s.presenterWg.Add(1)
	go func() {
		defer s.presenterWg.Done()
		_ = s.presenter.Run(presenterEvents) //nolint:errcheck // presenter error is non-fatal
	}()

	slog.Debug("session started", "method", svc.Method(), "bwlimit", bwLimit, "service", svc.ID())
	return s, nil
}

func logEvent(ev event.Event) {
	attrs := []slog.Attr{
		slog.String("type", ev.Type.String()),
		slog.Uint64("ticket", ev.Ticket),
		slog.Int64("size", ev.Size),
	}
	if ev.Path != "" {
		attrs = append(attrs, slog.String("path", ev.Path))
	}
	if ev.Error != nil {
		attrs = append(attrs, slog.String("error", ev.Error.Error()))
	}
	slog.LogAttrs(context.Background(), slog.LevelInfo, "aio.event", attrs...)
}

// close drains the service, flushes the presenter and prints the summary.
func (s *session) close() {
	if err := s.svc.Close(); err != nil {
		slog.Warn("close service", "error", err)
	}
	close(s.events)
	s.presenterWg.Wait()

	if !s.quiet {
		if summary := s.presenter.Summary(); summary != "" {
			fmt.Fprintln(s.errW, summary)
		}
	}
	s.runCleanup()
}

func (s *session) runCleanup() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}
