package batch

import "slices"

// List builds a batch. It is not safe for concurrent use.
type List struct {
	table           *Table
	ops             []Op
	callbacks       []func()
	resultCallbacks []func(Result)
	owned           []*Handle
}

// NewList creates a builder that resolves paths through table.
func NewList(table *Table) *List {
	return &List{table: table}
}

// ResolvePath interns path and hands the new reference to this list. It
// fails if the path does not exist.
func (l *List) ResolvePath(path string) (*Handle, error) {
	h, err := l.table.Resolve(path)
	if err != nil {
		return nil, err
	}
	l.owned = append(l.owned, h)
	return h, nil
}

// Copy appends a copy from src to dst. Handles resolved by another list are
// retained so this batch holds its own reference.
func (l *List) Copy(src, dst Endpoint) {
	l.own(src)
	l.own(dst)
	l.ops = append(l.ops, Op{Src: src, Dst: dst})
}

func (l *List) own(e Endpoint) {
	fr, ok := e.(FileRange)
	if !ok || fr.Handle == nil || slices.Contains(l.owned, fr.Handle) {
		return
	}
	fr.Handle.Retain()
	l.owned = append(l.owned, fr.Handle)
}

// OnComplete registers a callback run once the batch has executed. It runs
// whether or not individual operations succeeded.
func (l *List) OnComplete(fn func()) {
	l.callbacks = append(l.callbacks, fn)
}

// OnResult registers a callback that receives the batch result. Result
// callbacks run after the OnComplete callbacks.
func (l *List) OnResult(fn func(Result)) {
	l.resultCallbacks = append(l.resultCallbacks, fn)
}

// Len returns the number of queued operations.
func (l *List) Len() int { return len(l.ops) }

// Take moves the list's contents into a Batch and resets the list. It
// returns nil, leaving the list untouched, when no operations were added.
func (l *List) Take() *Batch {
	if len(l.ops) == 0 {
		return nil
	}
	b := &Batch{
		Ops:             l.ops,
		Callbacks:       l.callbacks,
		ResultCallbacks: l.resultCallbacks,
		Owned:           l.owned,
	}
	l.ops = nil
	l.callbacks = nil
	l.resultCallbacks = nil
	l.owned = nil
	return b
}

// Discard releases every handle the list owns and clears it. Use it for a
// list that will not be executed.
func (l *List) Discard() {
	for _, h := range l.owned {
		h.Release()
	}
	l.ops = nil
	l.callbacks = nil
	l.resultCallbacks = nil
	l.owned = nil
}
