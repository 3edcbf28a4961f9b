package looper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bamsammich/aio/internal/batch"
	"github.com/bamsammich/aio/internal/fence"
	"github.com/bamsammich/aio/internal/platform"
	"github.com/bamsammich/aio/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	outcomes []batch.Outcome
}

func (r *recorder) Record(o batch.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *recorder) all() []batch.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]batch.Outcome(nil), r.outcomes...)
}

func resolve(t *testing.T, table *batch.Table, dir, name string, data []byte) *batch.Handle {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	h, err := table.Resolve(path)
	require.NoError(t, err)
	return h
}

func waitFence(t *testing.T, f *fence.Fence, ts uint64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.Wait(ctx, ts))
}

func TestLooperRunsInOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	table := batch.NewTable()
	src := resolve(t, table, dir, "src", []byte("0123456789"))
	dst := resolve(t, table, dir, "dst", []byte("----------"))

	l := New(Config{})
	defer l.Close()

	f := fence.New()
	rec := &recorder{}
	buf := make([]byte, 10)

	l.EnqueueCopy(src, 0, 10, dst, 0, rec)
	l.EnqueueWrite([]byte("AB"), dst, 4, rec)
	l.EnqueueRead(dst, 0, buf, rec)
	l.EnqueueSignal(f, 1)
	waitFence(t, f, 1)

	// The read observes both earlier writes.
	assert.Equal(t, "0123AB6789", string(buf))

	outcomes := rec.all()
	require.Len(t, outcomes, 3)
	assert.Equal(t, batch.RouteCopy, outcomes[0].Route)
	assert.Equal(t, int64(10), outcomes[0].Bytes)
	assert.Equal(t, batch.RouteWrite, outcomes[1].Route)
	assert.Equal(t, int64(2), outcomes[1].Bytes)
	assert.Equal(t, batch.RouteRead, outcomes[2].Route)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
	}
}

func TestLooperOpenFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	table := batch.NewTable()
	h := resolve(t, table, dir, "gone", []byte("data"))
	require.NoError(t, os.Remove(h.Path()))

	l := New(Config{})
	defer l.Close()

	f := fence.New()
	rec := &recorder{}
	buf := []byte("keep")

	l.EnqueueRead(h, 0, buf, rec)
	l.EnqueueWrite([]byte("x"), h, 0, rec)
	l.EnqueueSignal(f, 1)
	waitFence(t, f, 1)

	assert.Equal(t, "keep", string(buf))
	outcomes := rec.all()
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, platform.ErrOpen)
		assert.Contains(t, o.Err.Error(), h.Path())
	}
	_, err := os.Stat(h.Path())
	assert.True(t, os.IsNotExist(err), "write must not create the file")
}

type panicBackend struct {
	platform.StreamBackend
}

func (panicBackend) ReadAt(string, int64, []byte) (int, error) {
	panic("boom")
}

func TestLooperRecoversPanics(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	table := batch.NewTable()
	h := resolve(t, table, dir, "f", []byte("abc"))

	l := New(Config{Backend: panicBackend{}})
	defer l.Close()

	f := fence.New()
	rec := &recorder{}
	l.EnqueueRead(h, 0, make([]byte, 3), rec)
	l.EnqueueWrite([]byte("z"), h, 0, rec)
	l.EnqueueSignal(f, 1)
	waitFence(t, f, 1)

	outcomes := rec.all()
	require.Len(t, outcomes, 2)
	require.Error(t, outcomes[0].Err)
	assert.Contains(t, outcomes[0].Err.Error(), "panic")
	assert.NoError(t, outcomes[1].Err)

	got, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Equal(t, "zbc", string(got))
}

func TestLooperCloseDrainsQueue(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	table := batch.NewTable()
	h := resolve(t, table, dir, "f", make([]byte, 100))

	l := New(Config{})
	f := fence.New()
	for i := range 100 {
		l.EnqueueWrite([]byte{'x'}, h, int64(i), nil)
	}
	l.EnqueueSignal(f, 5)
	require.NoError(t, l.Close())

	assert.True(t, f.Reached(5))
	got, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	for _, c := range got {
		assert.Equal(t, byte('x'), c)
	}

	select {
	case <-l.Done():
	default:
		t.Fatal("looper goroutine still running after Close")
	}
}

func TestLooperStats(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	table := batch.NewTable()
	a := resolve(t, table, dir, "a", []byte("hello"))
	b := resolve(t, table, dir, "b", []byte("world"))
	missing := resolve(t, table, dir, "missing", nil)
	require.NoError(t, os.Remove(missing.Path()))

	sc := stats.NewCollector()
	l := New(Config{Stats: sc})
	defer l.Close()

	f := fence.New()
	l.EnqueueCopy(a, 0, 5, b, 0, nil)
	l.EnqueueRead(a, 0, make([]byte, 3), nil)
	l.EnqueueWrite([]byte("hi"), b, 0, nil)
	l.EnqueueRead(missing, 0, make([]byte, 1), nil)
	l.EnqueueSignal(f, 1)
	waitFence(t, f, 1)

	s := sc.Snapshot()
	assert.Equal(t, int64(3), s.OpsCompleted)
	assert.Equal(t, int64(1), s.OpsFailed)
	assert.Equal(t, int64(5), s.BytesCopied)
	assert.Equal(t, int64(3), s.BytesRead)
	assert.Equal(t, int64(2), s.BytesWritten)
}

func TestLooperIdleThenWake(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	defer l.Close()

	f := fence.New()
	for ts := uint64(1); ts <= 20; ts++ {
		// Let the goroutine go idle between requests.
		time.Sleep(time.Millisecond)
		l.EnqueueSignal(f, ts)
		waitFence(t, f, ts)
	}
	assert.Equal(t, uint64(20), f.Current())
}

func TestLooperMethod(t *testing.T) {
	l := New(Config{})
	defer l.Close()
	assert.Equal(t, platform.ReadWrite, l.Method())
}

type closeErrBackend struct {
	platform.StreamBackend
}

func (closeErrBackend) Close() error { return errors.New("close failed") }

func TestLooperCloseReturnsBackendError(t *testing.T) {
	l := New(Config{Backend: closeErrBackend{}})
	assert.EqualError(t, l.Close(), "close failed")
}
