package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/newsroom/internal/authgate"
)

// Event types published on a session bus
const (
	EventTypeStatus       = "status"
	EventTypeStep         = "step"
	EventTypeAuthPrompt   = "auth_prompt"
	EventTypeNotification = "notification"
	EventTypePublished    = "published"
)

// Notification levels
const (
	LevelSuccess   = "success"
	LevelError     = "error"
	LevelCancelled = "cancelled"
)

// subscriberBuffer is the channel capacity of each subscriber.
const subscriberBuffer = 64

// Event is one message streamed to session clients.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// StepEvent is the data of a step event.
type StepEvent struct {
	Step  string `json:"step"`
	Label string `json:"label"`
	Index int    `json:"index"`
}

// PromptEvent is the data of an auth_prompt event.
type PromptEvent struct {
	Visible bool              `json:"visible"`
	Pending *authgate.Command `json:"pending,omitempty"`
}

// NotificationEvent is the data of a notification event.
type NotificationEvent struct {
	Level   string `json:"level"`
	Message string `json:"message,omitempty"`
}

// PublishedEvent is the data of a published event.
type PublishedEvent struct {
	ArticleID uuid.UUID `json:"article_id"`
	Title     string    `json:"title"`
}

// Bus fans session events out to subscribers. Slow subscribers miss events instead of blocking.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextSub     int64
	nextID      int64
	closed      bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int64]chan Event)}
}

// Subscribe returns a channel of events and a function that closes it.
// On a closed bus the channel is already closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextSub
	b.nextSub++
	b.subscribers[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
	}
}

// Publish broadcasts an event to every subscriber without blocking.
func (b *Bus) Publish(eventType string, data any) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.nextID++
	event := Event{
		ID:        b.nextID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	// Sends happen under the lock so unsubscribe cannot close a channel mid-send.
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
