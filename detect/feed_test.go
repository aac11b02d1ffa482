package detect

import (
	"testing"
	"time"

	"soundsense/models"
)

func TestFeedDeliversErrorEvents(t *testing.T) {
	t.Parallel()

	feed := NewFeed()
	events, cancel := feed.Subscribe(4)
	defer cancel()

	feed.PublishError("unable to embed audio")

	select {
	case event := <-events:
		if event.Type != EventError {
			t.Fatalf("expected %q event, got %q", EventError, event.Type)
		}
		if event.Message != "unable to embed audio" {
			t.Fatalf("unexpected message %q", event.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("error event never delivered")
	}
}

func TestFeedDropsWhenObserverBacklogged(t *testing.T) {
	t.Parallel()

	feed := NewFeed()
	events, cancel := feed.Subscribe(1)
	defer cancel()

	// Second publish must not block even though nobody is reading.
	done := make(chan struct{})
	go func() {
		feed.PublishListening(models.ListeningState{Listening: true})
		feed.PublishError("dropped")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full observer buffer")
	}

	event := <-events
	if event.Type != EventListening {
		t.Fatalf("expected the buffered listening event, got %q", event.Type)
	}
	select {
	case extra := <-events:
		t.Fatalf("expected the overflow event to be dropped, got %q", extra.Type)
	default:
	}
}

func TestFeedCancelStopsDelivery(t *testing.T) {
	t.Parallel()

	feed := NewFeed()
	events, cancel := feed.Subscribe(4)
	cancel()

	feed.PublishError("after cancel")

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected no events after cancel")
		}
	default:
	}
}
