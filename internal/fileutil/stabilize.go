package fileutil

import (
	"context"
	"os"
	"time"
)

// AwaitStable polls path until its size equals expectedSize. It returns false
// when timeout elapses or ctx is cancelled first. A file that is missing while
// polling is treated as not yet arrived.
func AwaitStable(ctx context.Context, path string, expectedSize int64, timeout, pollInterval time.Duration) bool {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		if info, err := os.Stat(path); err == nil && info.Size() == expectedSize {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		wait := min(pollInterval, remaining)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}
