package domain

import (
	"context"

	"dynasty/internal/models"
)

// KeyValue is the namespaced profile store the dashboard persists into.
// Watch delivers keys whose values changed. The redis implementation
// suppresses a context's own writes so only foreign changes arrive; local
// implementations deliver every write and rely on the consumer's debounce.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Watch() <-chan string
	Close() error
}

// SessionManager is the identity collaborator. Current reports an
// authenticated session only when all three identity fields are present and
// the login is within its validity window.
type SessionManager interface {
	Login(ctx context.Context, name, email string) (*models.Session, error)
	Current(ctx context.Context) (*models.Session, bool)
	Logout(ctx context.Context) error
}

// BookingStore is the partition-scoped booking collection.
//
// Load returns an empty slice for a missing partition or an unauthenticated
// caller. Save is a silent no-op without an authenticated session.
// UpdateStatus and Cancel report false when the id is unknown or the
// transition is not permitted; the error return carries storage faults only.
type BookingStore interface {
	Owner(ctx context.Context) (string, bool)
	Load(ctx context.Context, owner string) ([]models.Booking, error)
	Save(ctx context.Context, owner string, bookings []models.Booking) error
	Create(ctx context.Context, draft models.BookingDraft) (models.Booking, error)
	UpdateStatus(ctx context.Context, id string, status models.Status) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// EventPublisher fans booking lifecycle events out to in-process consumers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// InquirySource lists externally submitted contact-form inquiries,
// newest-first. Failures surface as an empty list plus error; callers treat
// the data as best-effort.
type InquirySource interface {
	Inquiries(ctx context.Context) ([]models.Inquiry, error)
}
