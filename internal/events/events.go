package events

import (
	"encoding/json"
	"sync"
	"time"

	"dynasty/internal/models"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingConfirmed     = "booking_confirmed"
	EventBookingCancelled     = "booking_cancelled"
	EventBookingAutoConfirmed = "booking_auto_confirmed"
)

// BookingEventPayload is the booking snapshot handed to event consumers.
type BookingEventPayload struct {
	BookingID     string        `json:"booking_id"`
	Owner         string        `json:"owner"`
	Status        models.Status `json:"status"`
	AutoConfirmed bool          `json:"auto_confirmed,omitempty"`
	Name          string        `json:"name,omitempty"`
	Email         string        `json:"email,omitempty"`
	People        int           `json:"people,omitempty"`
	DateTime      string        `json:"datetime,omitempty"`
	Message       string        `json:"message,omitempty"`
	ChangedBy     string        `json:"changed_by,omitempty"`
}

// NewBookingPayload snapshots a booking for publishing.
func NewBookingPayload(owner string, b models.Booking, changedBy string) BookingEventPayload {
	return BookingEventPayload{
		BookingID:     b.ID,
		Owner:         owner,
		Status:        b.Status,
		AutoConfirmed: b.AutoConfirmed,
		Name:          b.Name,
		Email:         b.Email,
		People:        b.People,
		DateTime:      b.DateTime,
		Message:       b.Message,
		ChangedBy:     changedBy,
	}
}

// Event is a lightweight in-process domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to a single event.
type Handler func(event *Event) error

// Bus provides synchronous in-process pub/sub.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers in registration order. Handler errors are
// the handler's problem; publishing never fails because a consumer did.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes the event. A nil bus is
// a no-op so optional wiring stays simple.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
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
