package detect

import (
	"sync"

	"soundsense/models"
)

// Event is one entry in the observable detection feed: a classification
// result, a listening-state change, or a surfaced error message.
type Event struct {
	Type    string                        `json:"type"`
	Result  *models.ClassificationResult  `json:"result,omitempty"`
	State   *models.ListeningState        `json:"state,omitempty"`
	Message string                        `json:"message,omitempty"`
}

// Event types.
const (
	EventClassification = "classification"
	EventListening      = "listeningState"
	EventError          = "error"
)

// Feed fans events out to any number of observers. Publishing never blocks:
// an observer that cannot keep up loses events rather than stalling the
// classification loop.
type Feed struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	next        int
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subscribers: make(map[int]chan Event)}
}

// Subscribe registers an observer. The returned cancel func must be called
// to release the subscription.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	f.mu.Lock()
	id := f.next
	f.next++
	ch := make(chan Event, buffer)
	f.subscribers[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if existing, ok := f.subscribers[id]; ok {
			delete(f.subscribers, id)
			close(existing)
		}
		f.mu.Unlock()
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (f *Feed) Publish(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			// observer backlog full; drop rather than stall
		}
	}
}

// PublishResult appends a classification result to the feed.
func (f *Feed) PublishResult(result models.ClassificationResult) {
	f.Publish(Event{Type: EventClassification, Result: &result})
}

// PublishListening surfaces a listening-state change.
func (f *Feed) PublishListening(state models.ListeningState) {
	f.Publish(Event{Type: EventListening, State: &state})
}

// PublishError surfaces a non-fatal error message to observers.
func (f *Feed) PublishError(message string) {
	f.Publish(Event{Type: EventError, Message: message})
}
