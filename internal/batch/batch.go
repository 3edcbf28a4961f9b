package batch

import (
	"errors"
	"sync"
)

// Outcome is the result of executing one Op.
type Outcome struct {
	Err   error
	Bytes int64
	Route Route
}

// Result summarizes a retired batch. Err joins every operation error; a nil
// Err means every op moved its bytes without an I/O error (a short source in
// a copy is not an error).
type Result struct {
	Err     error
	Ticket  uint64
	Ops     int
	Failed  int
	Skipped int
	Bytes   int64
}

// Batch is a submitted command list. Ops, callbacks and owned handles move
// here from the List at submission.
type Batch struct {
	Ops             []Op
	Callbacks       []func()
	ResultCallbacks []func(Result)
	Owned           []*Handle
	Ticket          uint64

	mu       sync.Mutex
	outcomes []Outcome
}

// Record stores the outcome of one op. It is called from the looper and the
// dispatcher concurrently.
func (b *Batch) Record(o Outcome) {
	b.mu.Lock()
	b.outcomes = append(b.outcomes, o)
	b.mu.Unlock()
}

// Result folds the recorded outcomes.
func (b *Batch) Result() Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := Result{Ticket: b.Ticket, Ops: len(b.Ops)}
	var errs []error
	for _, o := range b.outcomes {
		res.Bytes += o.Bytes
		if o.Err == nil {
			continue
		}
		if errors.Is(o.Err, ErrUnsupported) {
			res.Skipped++
		} else {
			res.Failed++
		}
		errs = append(errs, o.Err)
	}
	res.Err = errors.Join(errs...)
	return res
}

// Release drops the batch's reference on every owned handle. Calling it
// again is a no-op.
func (b *Batch) Release() {
	for _, h := range b.Owned {
		h.Release()
	}
	b.Owned = nil
}
