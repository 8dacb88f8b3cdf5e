package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type counter struct{ v atomic.Int64 }

func (c *counter) detect(context.Context) (int64, error) { return c.v.Load(), nil }

func eventually(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func start(t *testing.T, w *Watcher, action func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, action)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRun_FiresOnVersionChange(t *testing.T) {
	var c counter
	var reloads atomic.Int32
	w := New(c.detect, Options{Interval: 10 * time.Millisecond})
	start(t, w, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	c.v.Store(1)
	eventually(t, time.Second, func() bool { return reloads.Load() == 1 })
	c.v.Store(2)
	eventually(t, time.Second, func() bool { return reloads.Load() == 2 })

	time.Sleep(50 * time.Millisecond)
	if got := reloads.Load(); got != 2 {
		t.Fatalf("reloads without change: %d", got)
	}
	if w.Version() != 2 {
		t.Errorf("version: %d", w.Version())
	}
}

// WHAT: a burst of changes inside the debounce window yields one reload.
func TestRun_Debounce(t *testing.T) {
	var c counter
	var reloads atomic.Int32
	w := New(c.detect, Options{Interval: 10 * time.Millisecond, Debounce: 150 * time.Millisecond})
	start(t, w, func(context.Context) error {
		reloads.Add(1)
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	for i := 1; i <= 5; i++ {
		c.v.Store(int64(i))
		time.Sleep(15 * time.Millisecond)
	}
	if got := reloads.Load(); got != 0 {
		t.Fatalf("fired during debounce: %d", got)
	}
	eventually(t, time.Second, func() bool { return reloads.Load() == 1 })
	time.Sleep(200 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Fatalf("reloads: %d", got)
	}
	if w.Version() != 5 {
		t.Errorf("version: %d", w.Version())
	}
}

func TestRun_ErrorRetries(t *testing.T) {
	var c counter
	var calls atomic.Int32
	w := New(c.detect, Options{Interval: 10 * time.Millisecond})
	start(t, w, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	c.v.Store(7)
	eventually(t, time.Second, func() bool { return w.Version() == 7 })
	if calls.Load() < 2 {
		t.Errorf("calls: %d", calls.Load())
	}
	if s := w.Stats(); s.Errors == 0 || s.Reloads != 1 {
		t.Errorf("stats: %+v", s)
	}
}

func TestRun_DetectorErrorsCounted(t *testing.T) {
	w := New(func(context.Context) (int64, error) { return 0, errors.New("gone") },
		Options{Interval: 10 * time.Millisecond})
	start(t, w, func(context.Context) error {
		t.Error("action called")
		return nil
	})
	eventually(t, time.Second, func() bool { return w.Stats().Errors >= 2 })
}

func TestFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cdnmirror.yaml")
	det := FileHash(path)
	ctx := context.Background()

	if _, err := det(ctx); err == nil {
		t.Fatal("missing file: expected error")
	}
	os.WriteFile(path, []byte("enabled: false\n"), 0o644)
	a, err := det(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := det(ctx)
	if a != b {
		t.Error("hash not stable")
	}
	os.WriteFile(path, []byte("enabled: true\n"), 0o644)
	c, _ := det(ctx)
	if c == a {
		t.Error("hash unchanged after edit")
	}
}
