package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"dynasty/internal/domain"
	"dynasty/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNameTooShort = errors.New("name must be at least 2 characters")
	ErrInvalidEmail = errors.New("invalid email address")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Manager owns the identity fields in the profile store. A session is
// authenticated when name, email and token are all present; expiry past the
// TTL clears the fields on the next read.
type Manager struct {
	kv     domain.KeyValue
	ttl    time.Duration
	logger *zerolog.Logger
	now    func() time.Time
}

func NewManager(kv domain.KeyValue, ttl time.Duration, logger *zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = models.SessionTTL
	}
	return &Manager{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func (m *Manager) Login(ctx context.Context, name, email string) (*models.Session, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if len([]rune(name)) < 2 {
		return nil, ErrNameTooShort
	}
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	sess := &models.Session{
		Name:      name,
		Email:     email,
		Token:     uuid.NewString(),
		LoginTime: m.now(),
	}

	fields := map[string]string{
		models.KeyUserName:  sess.Name,
		models.KeyUserEmail: sess.Email,
		models.KeyAuthToken: sess.Token,
		models.KeyLoginTime: sess.LoginTime.Format(time.RFC3339),
	}
	for key, value := range fields {
		if err := m.kv.Set(ctx, key, value); err != nil {
			return nil, fmt.Errorf("persist session field %s: %w", key, err)
		}
	}

	m.logger.Info().Str("email", sess.Email).Msg("session opened")
	return sess, nil
}

// Current returns the active session. Missing identity fields yield
// (nil, false) without error; an expired login is cleared before reporting
// unauthenticated.
func (m *Manager) Current(ctx context.Context) (*models.Session, bool) {
	name, _, _ := m.kv.Get(ctx, models.KeyUserName)
	email, _, _ := m.kv.Get(ctx, models.KeyUserEmail)
	token, _, _ := m.kv.Get(ctx, models.KeyAuthToken)

	sess := &models.Session{Name: name, Email: email, Token: token}
	if !sess.Authenticated() {
		return nil, false
	}

	raw, ok, _ := m.kv.Get(ctx, models.KeyLoginTime)
	if ok {
		loginTime, err := time.Parse(time.RFC3339, raw)
		if err != nil || m.now().Sub(loginTime) >= m.ttl {
			m.logger.Info().Str("email", email).Msg("session expired")
			_ = m.Logout(ctx)
			return nil, false
		}
		sess.LoginTime = loginTime
	}

	return sess, true
}

// Logout removes the identity fields. Booking partitions stay untouched;
// use PurgeBookings first for a full wipe.
func (m *Manager) Logout(ctx context.Context) error {
	var firstErr error
	for _, key := range []string{models.KeyUserName, models.KeyUserEmail, models.KeyAuthToken, models.KeyLoginTime} {
		if err := m.kv.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PurgeBookings drops the current owner's booking partition.
func (m *Manager) PurgeBookings(ctx context.Context) error {
	email, ok, err := m.kv.Get(ctx, models.KeyUserEmail)
	if err != nil {
		return err
	}
	if !ok || email == "" {
		return nil
	}
	return m.kv.Delete(ctx, models.BookingsKey(email))
}
