// Package service is the entry point of the engine: it owns the looper and
// the dispatcher goroutine, hands out tickets for submitted command lists,
// and lets callers wait on them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bamsammich/aio/internal/batch"
	"github.com/bamsammich/aio/internal/dispatch"
	"github.com/bamsammich/aio/internal/event"
	"github.com/bamsammich/aio/internal/looper"
	"github.com/bamsammich/aio/internal/platform"
	"github.com/bamsammich/aio/internal/stats"
	"github.com/google/uuid"
)

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("service closed")

// Config controls service construction.
type Config struct {
	Method  platform.Method    // I/O backend; unavailable methods fall back to ReadWrite
	BWLimit int64              // bytes per second across all ops; 0 means unlimited
	Events  chan<- event.Event // optional lifecycle events; sends never block
	Logger  *slog.Logger       // defaults to slog.Default()
}

// Service is an independent engine instance. Multiple services may run in
// one process; handles from one service's table must not be used with
// another.
type Service struct {
	id    string
	log   *slog.Logger
	table *batch.Table
	stats *stats.Collector

	looper     *looper.Looper
	dispatcher *dispatch.Dispatcher

	stop chan struct{}
	done chan struct{}

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// New starts a service: the looper goroutine and the dispatcher goroutine.
func New(cfg Config) (*Service, error) {
	if cfg.BWLimit < 0 {
		return nil, fmt.Errorf("invalid bandwidth limit %d", cfg.BWLimit)
	}
	backend, err := platform.NewBackend(cfg.Method)
	if err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}

	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", id)

	sc := stats.NewCollector()
	lcfg := looper.Config{Backend: backend, Stats: sc, Logger: logger}
	if cfg.BWLimit > 0 {
		lcfg.Limiter = looper.NewBWLimiter(cfg.BWLimit)
	}
	l := looper.New(lcfg)

	s := &Service{
		id:     id,
		log:    logger,
		table:  batch.NewTable(),
		stats:  sc,
		looper: l,
		dispatcher: dispatch.New(dispatch.Config{
			Looper: l,
			Stats:  sc,
			Events: cfg.Events,
			Logger: logger,
		}),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		s.dispatcher.Run(s.stop)
	}()

	logger.Info("service started", "method", backend.Method(), "bwlimit", cfg.BWLimit)
	return s, nil
}

// ID returns the instance identifier attached to every log record.
func (s *Service) ID() string { return s.id }

// Method reports the I/O method actually in use.
func (s *Service) Method() platform.Method { return s.looper.Method() }

// Paths returns the table that interns this service's file handles.
func (s *Service) Paths() *batch.Table { return s.table }

// NewList returns a command list builder bound to this service.
func (s *Service) NewList() *batch.List { return batch.NewList(s.table) }

// Stats returns a snapshot of engine counters.
func (s *Service) Stats() stats.Snapshot { return s.stats.Snapshot() }

// Current returns the most recently issued ticket.
func (s *Service) Current() uint64 { return s.dispatcher.Current() }

// Execute submits the list's operations as one batch and returns its
// ticket. The list is reset and may be reused. A list with no operations is
// not submitted: it keeps its callbacks and handles, and the current ticket
// is returned. After Close, Execute returns ErrClosed and leaves the list
// untouched; call Discard on it to release its handles.
func (s *Service) Execute(l *batch.List) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	b := l.Take()
	if b == nil {
		return s.dispatcher.Current(), nil
	}
	return s.dispatcher.Submit(b), nil
}

// Sync blocks until the looper has finished every operation of ticket.
// Callbacks may still be pending when it returns; use Await to wait for
// them. A ticket that was never issued blocks until ctx is done.
func (s *Service) Sync(ctx context.Context, ticket uint64) error {
	return s.dispatcher.Completed().Wait(ctx, ticket)
}

// Await blocks until ticket's callbacks have run and its handles have been
// released.
func (s *Service) Await(ctx context.Context, ticket uint64) error {
	return s.dispatcher.Retired().Wait(ctx, ticket)
}

// Close stops accepting batches, finishes and retires everything already
// submitted, then stops the looper. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.stop)
		<-s.done

		if err := s.looper.Close(); err != nil {
			s.closeErr = fmt.Errorf("close looper: %w", err)
		}
		s.log.Info("service closed", "stats", s.stats.Snapshot().String())
	})
	return s.closeErr
}
