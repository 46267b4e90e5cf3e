package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/smartgrocer/basket-analytics-platform/pkg/kafka"
)

type fakeWriter struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (f *fakeWriter) Publish(ctx context.Context, event kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeWriter) PublishBatch(ctx context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeWriter) published() []kafka.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]kafka.Event, len(f.events))
	copy(out, f.events)
	return out
}

func TestCollectorPublishesTrackedEvents(t *testing.T) {
	writer := &fakeWriter{}
	c := NewCollector(writer, 16)
	c.Start(context.Background())

	c.Track("groceries", MineEvent{Type: EventCacheMiss, Dataset: "groceries"})
	c.Track("retail", MineEvent{Type: EventCacheHit, Dataset: "retail", CacheHit: true})
	c.Close()

	events := writer.published()
	if len(events) != 2 {
		t.Fatalf("published %d events, want 2", len(events))
	}
	if events[0].Key != "groceries" || events[1].Key != "retail" {
		t.Errorf("event keys = %q, %q, want groceries, retail", events[0].Key, events[1].Key)
	}
	if c.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", c.Dropped())
	}
}

func TestCollectorDropsWhenFull(t *testing.T) {
	// Not started, so nothing drains the channel.
	c := NewCollector(&fakeWriter{}, 2)

	c.Track("a", MineEvent{Type: EventMine})
	c.Track("b", MineEvent{Type: EventMine})
	c.Track("c", MineEvent{Type: EventMine})

	if c.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", c.Dropped())
	}
	if len(c.eventCh) != 2 {
		t.Errorf("buffered = %d, want 2", len(c.eventCh))
	}
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	writer := &fakeWriter{}
	c := NewCollector(writer, 16)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	for i := 0; i < 3; i++ {
		c.Track("groceries", IngestEvent{Type: EventIngest, Records: i})
	}
	cancel()
	c.Close()

	if got := len(writer.published()); got != 3 {
		t.Errorf("published %d events after cancel, want 3", got)
	}
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	c := NewCollector(writer, 16)
	c.Start(context.Background())

	c.Track("groceries", MineEvent{Type: EventMine})
	c.Track("groceries", MineEvent{Type: EventMine})
	c.Close()

	if got := len(writer.published()); got != 0 {
		t.Errorf("published %d events, want 0 with failing writer", got)
	}
}
