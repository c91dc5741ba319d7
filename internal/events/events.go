package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventHoldPlaced       = "hold_placed"
	EventHoldReleased     = "hold_released"
	EventHoldExpired      = "hold_expired"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventRangeBlocked     = "range_blocked"
	EventAuctionBlocked   = "auction_blocked"
	EventAuctionResolved  = "auction_resolved"
)

// CalendarEventPayload is the snapshot handed to event consumers when a
// range of calendar days changes hands.
type CalendarEventPayload struct {
	PropertyID    int64      `json:"property_id"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       time.Time  `json:"end_date"`
	BookingID     int64      `json:"booking_id,omitempty"`
	AuctionID     int64      `json:"auction_id,omitempty"`
	UserID        int64      `json:"user_id,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Source        string     `json:"source,omitempty"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	ReleasedDays  int        `json:"released_days,omitempty"`
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
