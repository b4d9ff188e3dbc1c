package fileutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAwaitStableImmediate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !AwaitStable(context.Background(), path, 5, time.Second, 10*time.Millisecond) {
		t.Fatal("expected stable file")
	}
}

func TestAwaitStableWaitsForGrowth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("12"), 0o644); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("1234567890"), 0o644)
	}()

	if !AwaitStable(context.Background(), path, 10, 5*time.Second, 10*time.Millisecond) {
		t.Fatal("expected file to reach expected size")
	}
	<-done
}

func TestAwaitStableMissingFileIsTransient(t *testing.T) {
	path := filepath.Join(t.TempDir(), "late.mp4")

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("abc"), 0o644)
	}()

	if !AwaitStable(context.Background(), path, 3, 5*time.Second, 10*time.Millisecond) {
		t.Fatal("expected late file to be accepted")
	}
	<-done
}

func TestAwaitStableTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.mp4")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if AwaitStable(context.Background(), path, 100, 80*time.Millisecond, 10*time.Millisecond) {
		t.Fatal("expected timeout")
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestAwaitStableContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if AwaitStable(ctx, path, 1, time.Minute, 10*time.Millisecond) {
		t.Fatal("expected false on cancelled context")
	}
}

func TestAwaitStableTwoChunksOverThreeSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("slow timing test")
	}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	first := make([]byte, 4096)
	second := make([]byte, 4096)
	if err := os.WriteFile(path, first, 0o644); err != nil {
		t.Fatal(err)
	}

	written := make(chan time.Time, 1)
	go func() {
		time.Sleep(3 * time.Second)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			written <- time.Time{}
			return
		}
		started := time.Now()
		_, _ = f.Write(second)
		_ = f.Close()
		written <- started
	}()

	ok := AwaitStable(context.Background(), path, int64(len(first)+len(second)), 10*time.Second, time.Second)
	done := time.Now()
	if !ok {
		t.Fatal("expected file to stabilize")
	}
	secondChunk := <-written
	if secondChunk.IsZero() {
		t.Fatal("writer failed")
	}
	if done.Before(secondChunk) {
		t.Fatal("reported stable before the second chunk landed")
	}
	if done.Sub(secondChunk) > 2*time.Second {
		t.Fatalf("stabilization detected too late: %v after final write", done.Sub(secondChunk))
	}
}
