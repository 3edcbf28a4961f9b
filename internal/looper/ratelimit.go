package looper

import (
	"context"

	"golang.org/x/time/rate"
)

// NewBWLimiter creates a rate.Limiter that caps aggregate throughput to
// bytesPerSec. The burst is set to 1 MB so whole 4 KiB stream chunks and
// typical memory regions pass without splitting the wait.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20 // 1 MB
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// throttle charges n bytes against limiter, in burst-sized pieces since
// WaitN rejects requests larger than the burst.
func throttle(ctx context.Context, limiter *rate.Limiter, n int64) error {
	if limiter == nil || n <= 0 {
		return nil
	}
	burst := int64(limiter.Burst())
	if burst <= 0 {
		return nil
	}
	for n > 0 {
		chunk := min(n, burst)
		if err := limiter.WaitN(ctx, int(chunk)); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
