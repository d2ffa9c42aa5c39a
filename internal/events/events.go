package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventJobEnqueued        = "job_enqueued"
	EventJobPublished       = "job_published"
	EventJobDeferred        = "job_deferred"
	EventJobAbandoned       = "job_abandoned"
	EventJobCancelled       = "job_cancelled"
	EventCheckbackCompleted = "checkback_completed"
	EventCheckbackSkipped   = "checkback_skipped"
	EventRollupUpdated      = "rollup_updated"
	EventPlatformStarved    = "platform_starved"
)

// JobEventPayload is the minimal job snapshot for event consumers.
type JobEventPayload struct {
	JobID        int64     `json:"job_id"`
	ContentID    int64     `json:"content_id"`
	Platform     string    `json:"platform"`
	Account      string    `json:"account"`
	Status       string    `json:"status"`
	Priority     int       `json:"priority"`
	ScheduledFor time.Time `json:"scheduled_for"`
	RetryCount   int       `json:"retry_count,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// CheckbackEventPayload describes a checkback outcome.
type CheckbackEventPayload struct {
	TaskID      int64  `json:"task_id"`
	JobID       int64  `json:"job_id"`
	ContentID   int64  `json:"content_id"`
	Platform    string `json:"platform"`
	OffsetHours int    `json:"offset_hours"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts,omitempty"`
}

// StarvationEventPayload warns that a platform/account pair has no queued
// job inside the max-gap boundary.
type StarvationEventPayload struct {
	Platform string    `json:"platform"`
	Account  string    `json:"account"`
	LastSlot time.Time `json:"last_slot"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
