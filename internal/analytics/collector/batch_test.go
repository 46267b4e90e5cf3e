package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smartgrocer/basket-analytics-platform/pkg/kafka"
)

type fakeWriter struct {
	mu     sync.Mutex
	events []kafka.Event
	calls  int
	err    error
}

func (f *fakeWriter) Publish(ctx context.Context, event kafka.Event) error {
	return f.PublishBatch(ctx, []kafka.Event{event})
}

func (f *fakeWriter) PublishBatch(ctx context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeWriter) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeWriter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestBatchFlushOnSize(t *testing.T) {
	writer := &fakeWriter{}
	bc := NewBatchCollector(writer, 2, time.Hour)

	bc.Track("groceries", 1)
	bc.Track("groceries", 2)

	waitFor(t, func() bool { return writer.count() == 2 })
	if got := bc.BufferLen(); got != 0 {
		t.Errorf("BufferLen = %d, want 0 after flush", got)
	}
}

func TestBatchFlushOnInterval(t *testing.T) {
	writer := &fakeWriter{}
	bc := NewBatchCollector(writer, 100, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	bc.Track("groceries", "event")
	waitFor(t, func() bool { return writer.count() == 1 })

	cancel()
	bc.Close()
}

func TestBatchFinalFlushOnShutdown(t *testing.T) {
	writer := &fakeWriter{}
	bc := NewBatchCollector(writer, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	for i := 0; i < 3; i++ {
		bc.Track("groceries", i)
	}
	cancel()
	bc.Close()

	if got := writer.count(); got != 3 {
		t.Errorf("published %d events, want 3 from final flush", got)
	}
}

func TestBatchRequeueOnFailure(t *testing.T) {
	writer := &fakeWriter{}
	writer.setErr(errors.New("broker down"))
	bc := NewBatchCollector(writer, 2, time.Hour)

	bc.Track("groceries", 1)
	bc.Track("groceries", 2)
	waitFor(t, func() bool { return writer.callCount() >= 1 && bc.BufferLen() == 2 })

	writer.setErr(nil)
	bc.Track("groceries", 3)
	waitFor(t, func() bool { return writer.count() == 3 })
	if got := bc.BufferLen(); got != 0 {
		t.Errorf("BufferLen = %d, want 0 after successful retry", got)
	}
}

func TestBatchDefaults(t *testing.T) {
	bc := NewBatchCollector(&fakeWriter{}, 0, 0)
	if bc.batchSize != 100 {
		t.Errorf("batchSize = %d, want default 100", bc.batchSize)
	}
	if bc.flushInterval != 5*time.Second {
		t.Errorf("flushInterval = %v, want default 5s", bc.flushInterval)
	}
}
