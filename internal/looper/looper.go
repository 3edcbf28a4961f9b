package looper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bamsammich/aio/internal/batch"
	"github.com/bamsammich/aio/internal/fence"
	"github.com/bamsammich/aio/internal/platform"
	"github.com/bamsammich/aio/internal/stats"
	"golang.org/x/time/rate"
)

// Recorder receives the outcome of each operation the looper runs.
type Recorder interface {
	Record(batch.Outcome)
}

// Config controls looper behavior.
type Config struct {
	Backend platform.Backend // defaults to platform.StreamBackend
	Limiter *rate.Limiter    // nil means unlimited
	Stats   *stats.Collector // optional
	Logger  *slog.Logger     // defaults to slog.Default()
}

type request struct {
	route batch.Route // RouteInvalid for fence signals
	path  string
	rec   Recorder
	exec  func() (int64, error)
}

// Looper executes raw I/O requests on one dedicated goroutine, strictly in
// the order they were enqueued.
type Looper struct {
	backend platform.Backend
	limiter *rate.Limiter
	stats   *stats.Collector
	log     *slog.Logger

	mu       sync.Mutex
	pending  []request
	disabled bool

	wake chan struct{}
	done chan struct{}
}

// New starts a looper goroutine. Stop it with Close.
func New(cfg Config) *Looper {
	if cfg.Backend == nil {
		cfg.Backend = platform.StreamBackend{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Looper{
		backend: cfg.Backend,
		limiter: cfg.Limiter,
		stats:   cfg.Stats,
		log:     cfg.Logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Method reports the I/O method of the backend in use.
func (l *Looper) Method() platform.Method {
	return l.backend.Method()
}

// EnqueueRead queues a read of up to len(dst) bytes of h at offset into dst.
// On open failure the error is logged and dst is left untouched.
func (l *Looper) EnqueueRead(h *batch.Handle, offset int64, dst []byte, rec Recorder) {
	path := h.Path()
	l.enqueue(request{
		route: batch.RouteRead,
		path:  path,
		rec:   rec,
		exec: func() (int64, error) {
			n, err := l.backend.ReadAt(path, offset, dst)
			if err != nil {
				return int64(n), fmt.Errorf("read %s at %d: %w", path, offset, err)
			}
			return int64(n), nil
		},
	})
}

// EnqueueWrite queues a write of all of src into h at offset. The file must
// exist; it is never created.
func (l *Looper) EnqueueWrite(src []byte, h *batch.Handle, offset int64, rec Recorder) {
	path := h.Path()
	l.enqueue(request{
		route: batch.RouteWrite,
		path:  path,
		rec:   rec,
		exec: func() (int64, error) {
			n, err := l.backend.WriteAt(path, offset, src)
			if err != nil {
				return int64(n), fmt.Errorf("write %s at %d: %w", path, offset, err)
			}
			return int64(n), nil
		},
	})
}

// EnqueueCopy queues a copy of length bytes from src at srcOffset to dst at
// dstOffset. A source shorter than the range truncates the copy silently.
func (l *Looper) EnqueueCopy(
	src *batch.Handle, srcOffset, length int64,
	dst *batch.Handle, dstOffset int64,
	rec Recorder,
) {
	params := platform.CopyRangeParams{
		SrcPath:   src.Path(),
		DstPath:   dst.Path(),
		SrcOffset: srcOffset,
		DstOffset: dstOffset,
		Length:    length,
	}
	l.enqueue(request{
		route: batch.RouteCopy,
		path:  params.SrcPath,
		rec:   rec,
		exec: func() (int64, error) {
			res, err := l.backend.CopyRange(params)
			if err != nil {
				return res.BytesWritten, fmt.Errorf("copy %s -> %s: %w",
					params.SrcPath, params.DstPath, err)
			}
			return res.BytesWritten, nil
		},
	})
}

// EnqueueSignal queues an advance of f to ts. Because requests run in order,
// the advance happens after every request enqueued before it.
func (l *Looper) EnqueueSignal(f *fence.Fence, ts uint64) {
	l.enqueue(request{
		exec: func() (int64, error) {
			f.Advance(ts)
			return 0, nil
		},
	})
}

// Disable tells the looper to exit once its queue is empty. Requests
// enqueued after the goroutine has exited are never run.
func (l *Looper) Disable() {
	l.mu.Lock()
	l.disabled = true
	l.mu.Unlock()
	l.notify()
}

// Done is closed when the looper goroutine exits.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// Close disables the looper, waits for it to drain, and releases the backend.
func (l *Looper) Close() error {
	l.Disable()
	<-l.done
	return l.backend.Close()
}

func (l *Looper) enqueue(r request) {
	l.mu.Lock()
	l.pending = append(l.pending, r)
	l.mu.Unlock()
	l.notify()
}

func (l *Looper) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Looper) run() {
	defer close(l.done)
	l.log.Debug("looper started", "method", l.backend.Method())

	for {
		l.mu.Lock()
		work := l.pending
		l.pending = nil
		disabled := l.disabled
		l.mu.Unlock()

		if len(work) == 0 {
			if disabled {
				l.log.Debug("looper exited")
				return
			}
			<-l.wake
			continue
		}

		for i := range work {
			l.execute(work[i])
			work[i] = request{}
		}
	}
}

func (l *Looper) execute(r request) {
	n, err := l.safeExec(r)

	if r.route != batch.RouteInvalid {
		if err != nil {
			l.log.Error("operation failed", "op", r.route, "path", r.path, "error", err)
		}
		l.account(r.route, n, err)
		if r.rec != nil {
			r.rec.Record(batch.Outcome{Err: err, Bytes: n, Route: r.route})
		}
	}

	if n > 0 {
		// Background context: throughput caps never abort queued work.
		_ = throttle(context.Background(), l.limiter, n)
	}
}

func (l *Looper) safeExec(r request) (n int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s request: %v", r.route, p)
			l.log.Error("looper request panicked", "op", r.route, "path", r.path, "panic", p)
		}
	}()
	return r.exec()
}

func (l *Looper) account(route batch.Route, n int64, err error) {
	if l.stats == nil {
		return
	}
	if err != nil {
		l.stats.AddOpsFailed(1)
	} else {
		l.stats.AddOpsCompleted(1)
	}
	switch route {
	case batch.RouteRead:
		l.stats.AddBytesRead(n)
	case batch.RouteWrite:
		l.stats.AddBytesWritten(n)
	case batch.RouteCopy:
		l.stats.AddBytesCopied(n)
	case batch.RouteInvalid:
	}
}
