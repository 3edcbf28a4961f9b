// Package dispatch turns submitted batches into looper requests and retires
// them, in submission order, once the looper has signalled their ticket.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/bamsammich/aio/internal/batch"
	"github.com/bamsammich/aio/internal/event"
	"github.com/bamsammich/aio/internal/fence"
	"github.com/bamsammich/aio/internal/looper"
	"github.com/bamsammich/aio/internal/stats"
	"github.com/eapache/queue"
)

// Config wires a Dispatcher to its looper.
type Config struct {
	Looper *looper.Looper
	Stats  *stats.Collector   // optional
	Events chan<- event.Event // optional; sends never block
	Logger *slog.Logger       // defaults to slog.Default()
}

// Dispatcher owns the ticket counter, the submission FIFO and the
// completion-wait FIFO.
type Dispatcher struct {
	looper *looper.Looper
	stats  *stats.Collector
	events chan<- event.Event
	log    *slog.Logger

	completed *fence.Fence // advanced by the looper
	retired   *fence.Fence // advanced after a batch's callbacks ran

	mu          sync.Mutex
	current     uint64
	submissions *queue.Queue
	wake        chan struct{}

	waiting *queue.Queue // dispatcher goroutine only
}

// New creates a dispatcher. Nothing runs until Run or Tick is called.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		looper:      cfg.Looper,
		stats:       cfg.Stats,
		events:      cfg.Events,
		log:         cfg.Logger,
		completed:   fence.New(),
		retired:     fence.New(),
		submissions: queue.New(),
		wake:        make(chan struct{}, 1),
		waiting:     queue.New(),
	}
}

// Completed is the fence the looper advances once a ticket's I/O has run.
func (d *Dispatcher) Completed() *fence.Fence { return d.completed }

// Retired is the fence advanced once a ticket's callbacks have run and its
// handles were released.
func (d *Dispatcher) Retired() *fence.Fence { return d.retired }

// Current returns the most recently issued ticket.
func (d *Dispatcher) Current() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Submit assigns b the next ticket and queues it. An empty batch is not
// queued: its callbacks never run and the current ticket is returned
// unchanged.
func (d *Dispatcher) Submit(b *batch.Batch) uint64 {
	if b == nil || len(b.Ops) == 0 {
		return d.Current()
	}

	d.mu.Lock()
	d.current++
	ticket := d.current
	b.Ticket = ticket
	d.submissions.Add(b)
	d.mu.Unlock()

	if d.stats != nil {
		d.stats.AddBatchesSubmitted(1)
	}
	event.Emit(d.events, event.Event{
		Type:   event.BatchSubmitted,
		Ticket: ticket,
		Size:   int64(len(b.Ops)),
	})
	d.notify()
	return ticket
}

// Tick dispatches the oldest submission and retires the oldest batch whose
// ticket has been reached. It reports whether either happened.
func (d *Dispatcher) Tick() bool {
	dispatched := d.dispatchNext()
	retired := d.retireNext()
	return dispatched || retired
}

// Run ticks until stop is closed, then drains everything still queued.
// Between ticks it blocks until a submission arrives or the looper advances
// the fence.
func (d *Dispatcher) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			d.DrainAndJoin()
			return
		default:
		}

		changed := d.completed.Changed()
		if d.Tick() {
			continue
		}

		select {
		case <-stop:
			d.DrainAndJoin()
			return
		case <-d.wake:
		case <-changed:
		}
	}
}

// DrainAndJoin dispatches every queued submission, then waits for and
// retires each outstanding batch in order. The looper must still be running.
func (d *Dispatcher) DrainAndJoin() {
	n := 0
	for d.dispatchNext() {
		n++
	}
	for d.waiting.Length() > 0 {
		b := d.waiting.Peek().(*batch.Batch)
		// Background context: the looper always signals eventually.
		_ = d.completed.Wait(context.Background(), b.Ticket)
		d.retire(b)
		d.waiting.Remove()
	}
	d.log.Debug("dispatcher drained", "dispatched", n, "ticket", d.Current())
}

func (d *Dispatcher) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) dispatchNext() bool {
	d.mu.Lock()
	if d.submissions.Length() == 0 {
		d.mu.Unlock()
		return false
	}
	b := d.submissions.Remove().(*batch.Batch)
	d.mu.Unlock()

	defer d.waiting.Add(b)

	for i, op := range b.Ops {
		d.route(b, i, op)
	}
	d.looper.EnqueueSignal(d.completed, b.Ticket)

	event.Emit(d.events, event.Event{
		Type:   event.BatchDispatched,
		Ticket: b.Ticket,
		Size:   int64(len(b.Ops)),
	})
	return true
}

func (d *Dispatcher) route(b *batch.Batch, i int, op batch.Op) {
	switch op.Route() {
	case batch.RouteCopy:
		src := op.Src.(batch.FileRange)
		dst := op.Dst.(batch.FileRange)
		d.looper.EnqueueCopy(src.Handle, src.Offset, src.Length,
			dst.Handle, dst.Offset, d.recorder(b, src.Handle))
	case batch.RouteRead:
		src := op.Src.(batch.FileRange)
		dst := op.Dst.(batch.Memory)
		d.looper.EnqueueRead(src.Handle, src.Offset, dst.Data, d.recorder(b, src.Handle))
	case batch.RouteWrite:
		src := op.Src.(batch.Memory)
		dst := op.Dst.(batch.FileRange)
		d.looper.EnqueueWrite(src.Data, dst.Handle, dst.Offset, d.recorder(b, dst.Handle))
	case batch.RouteInvalid:
		err := fmt.Errorf("batch %d op %d (%T -> %T): %w",
			b.Ticket, i, op.Src, op.Dst, batch.ErrUnsupported)
		d.log.Error("skipping operation", "ticket", b.Ticket, "op", i, "error", err)
		b.Record(batch.Outcome{Err: err, Route: batch.RouteInvalid})
		if d.stats != nil {
			d.stats.AddOpsSkipped(1)
		}
		event.Emit(d.events, event.Event{
			Type:   event.OpSkipped,
			Ticket: b.Ticket,
			Error:  err,
		})
	}
}

func (d *Dispatcher) recorder(b *batch.Batch, h *batch.Handle) looper.Recorder {
	if d.events == nil {
		return b
	}
	return &opRecorder{batch: b, events: d.events, path: h.Path()}
}

// opRecorder forwards outcomes to the batch and reports failures as events.
type opRecorder struct {
	batch  *batch.Batch
	events chan<- event.Event
	path   string
}

func (r *opRecorder) Record(o batch.Outcome) {
	r.batch.Record(o)
	if o.Err != nil {
		event.Emit(r.events, event.Event{
			Type:   event.OpFailed,
			Ticket: r.batch.Ticket,
			Path:   failedPath(o.Err, r.path),
			Error:  o.Err,
		})
	}
}

// failedPath names the file an error refers to, falling back to the op's
// primary path when the error carries none.
func failedPath(err error, fallback string) string {
	var pe *fs.PathError
	if errors.As(err, &pe) && pe.Path != "" {
		return pe.Path
	}
	return fallback
}

func (d *Dispatcher) retireNext() bool {
	if d.waiting.Length() == 0 {
		return false
	}
	b := d.waiting.Peek().(*batch.Batch)
	if !d.completed.Reached(b.Ticket) {
		return false
	}
	d.retire(b)
	d.waiting.Remove()
	return true
}

func (d *Dispatcher) retire(b *batch.Batch) {
	for i, fn := range b.Callbacks {
		d.safeCall(b.Ticket, i, fn)
	}
	res := b.Result()
	for i, fn := range b.ResultCallbacks {
		d.safeCall(b.Ticket, i, func() { fn(res) })
	}
	b.Release()

	if d.stats != nil {
		d.stats.AddBatchesCompleted(1)
	}
	event.Emit(d.events, event.Event{
		Type:   event.BatchCompleted,
		Ticket: b.Ticket,
		Size:   res.Bytes,
		Error:  res.Err,
	})
	d.retired.Advance(b.Ticket)
}

// safeCall runs a user callback, logging instead of crashing the dispatcher
// if it panics.
func (d *Dispatcher) safeCall(ticket uint64, i int, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("callback panicked", "ticket", ticket, "callback", i, "panic", p)
		}
	}()
	fn()
}
