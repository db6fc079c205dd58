package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dynasty/internal/domain"
	"dynasty/internal/metrics"
	"dynasty/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store keeps each owner's bookings as a JSON array under the partition key
// bookings_<email>, newest-first. All reads and writes are guarded by the
// session predicate: an unauthenticated caller loads empty and saves nothing.
type Store struct {
	kv       domain.KeyValue
	sessions domain.SessionManager
	logger   *zerolog.Logger
	now      func() time.Time
}

func New(kv domain.KeyValue, sessions domain.SessionManager, logger *zerolog.Logger) *Store {
	return &Store{
		kv:       kv,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Owner returns the partition owner of the active session.
func (s *Store) Owner(ctx context.Context) (string, bool) {
	sess, ok := s.sessions.Current(ctx)
	if !ok {
		return "", false
	}
	return sess.Email, true
}

// Load returns the partition's records, newest-first. A missing partition, a
// foreign or unauthenticated owner, and malformed stored JSON all yield an
// empty slice; only storage faults surface as errors.
func (s *Store) Load(ctx context.Context, owner string) ([]models.Booking, error) {
	if !s.ownPartition(ctx, owner) {
		return []models.Booking{}, nil
	}

	raw, ok, err := s.kv.Get(ctx, models.BookingsKey(owner))
	if err != nil {
		return nil, fmt.Errorf("load partition: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return []models.Booking{}, nil
	}

	var bookings []models.Booking
	if err := json.Unmarshal([]byte(raw), &bookings); err != nil {
		// Corrupt data fails open to a valid empty partition.
		s.logger.Warn().Err(err).Str("owner", owner).Msg("malformed booking partition, starting empty")
		return []models.Booking{}, nil
	}
	return bookings, nil
}

// Save atomically replaces the partition. Without an authenticated session
// for the given owner it is a silent no-op, so booking data never lands in
// an anonymous partition.
func (s *Store) Save(ctx context.Context, owner string, bookings []models.Booking) error {
	if !s.ownPartition(ctx, owner) {
		return nil
	}

	data, err := json.Marshal(bookings)
	if err != nil {
		return fmt.Errorf("encode partition: %w", err)
	}
	if err := s.kv.Set(ctx, models.BookingsKey(owner), string(data)); err != nil {
		return fmt.Errorf("save partition: %w", err)
	}

	metrics.IncStoreWrite()
	return nil
}

// Create assigns a fresh id, marks the booking pending and prepends it to
// the owner's partition. The booking is returned even when the session is
// anonymous; the write is then silently discarded by Save.
func (s *Store) Create(ctx context.Context, draft models.BookingDraft) (models.Booking, error) {
	now := s.now()
	booking := models.Booking{
		ID:        newBookingID(now),
		Status:    models.StatusPending,
		Name:      draft.Name,
		Email:     draft.Email,
		Phone:     draft.Phone,
		People:    draft.People,
		DateTime:  draft.DateTime,
		Message:   draft.Message,
		Service:   draft.Service,
		CreatedAt: now,
		UpdatedAt: now,
	}

	owner, ok := s.Owner(ctx)
	if !ok {
		return booking, nil
	}

	existing, err := s.Load(ctx, owner)
	if err != nil {
		return booking, err
	}

	updated := make([]models.Booking, 0, len(existing)+1)
	updated = append(updated, booking)
	updated = append(updated, existing...)

	if err := s.Save(ctx, owner, updated); err != nil {
		return booking, err
	}

	s.logger.Info().Str("booking_id", booking.ID).Str("owner", owner).Msg("booking created")
	return booking, nil
}

// UpdateStatus applies an explicit actor transition. It reports false when
// the id is unknown or the transition is not permitted by the state machine;
// terminal cancelled records never change.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.Status) (bool, error) {
	owner, ok := s.Owner(ctx)
	if !ok {
		return false, nil
	}

	bookings, err := s.Load(ctx, owner)
	if err != nil {
		return false, err
	}

	for i := range bookings {
		if bookings[i].ID != id {
			continue
		}
		if !bookings[i].Status.CanTransitionTo(status) {
			return false, nil
		}

		bookings[i].Status = status
		bookings[i].UpdatedAt = s.now()
		if err := s.Save(ctx, owner, bookings); err != nil {
			return false, err
		}

		s.logger.Info().Str("booking_id", id).Str("status", status.String()).Msg("booking status updated")
		return true, nil
	}

	return false, nil
}

// Cancel is shorthand for an explicit transition to cancelled.
func (s *Store) Cancel(ctx context.Context, id string) (bool, error) {
	return s.UpdateStatus(ctx, id, models.StatusCancelled)
}

// ownPartition ties every partition access to the active session: the
// caller must be authenticated and may only touch its own owner key.
func (s *Store) ownPartition(ctx context.Context, owner string) bool {
	if owner == "" {
		return false
	}
	sess, ok := s.sessions.Current(ctx)
	return ok && sess.Email == owner
}

// newBookingID combines a millisecond timestamp with a random suffix so ids
// sort roughly by creation time and never collide in practice.
func newBookingID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", models.BookingIDPrefix, now.UnixMilli(), suffix)
}
