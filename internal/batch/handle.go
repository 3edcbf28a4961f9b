package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Table interns resolved paths. Every batch that references a path holds one
// reference to its Handle; the entry leaves the table when the last reference
// is released.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Handle
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*Handle)}
}

// Handle is a reference-counted, interned file path.
type Handle struct {
	table *Table
	path  string
	refs  int // guarded by table.mu
}

// Resolve interns path and returns its handle with one new reference held by
// the caller. The path must exist.
func (t *Table) Resolve(path string) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.entries[abs]; ok {
		h.refs++
		return h, nil
	}
	h := &Handle{table: t, path: abs, refs: 1}
	t.entries[abs] = h
	return h, nil
}

// Len returns the number of live interned paths.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Path returns the absolute path.
func (h *Handle) Path() string { return h.path }

// Refs returns the number of outstanding references.
func (h *Handle) Refs() int {
	h.table.mu.Lock()
	defer h.table.mu.Unlock()
	return h.refs
}

// Retain takes an additional reference. Retaining a fully released handle
// re-interns it unless the path has been resolved again in the meantime.
func (h *Handle) Retain() {
	t := h.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if h.refs == 0 {
		if _, ok := t.entries[h.path]; !ok {
			t.entries[h.path] = h
		}
	}
	h.refs++
}

// Release drops one reference. It panics if the handle has no references
// left, which means some owner released it twice.
func (h *Handle) Release() {
	t := h.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if h.refs <= 0 {
		panic("batch: handle " + h.path + " released more times than retained")
	}
	h.refs--
	if h.refs == 0 && t.entries[h.path] == h {
		delete(t.entries, h.path)
	}
}

func (h *Handle) String() string { return h.path }
