package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dynasty/internal/config"
	"dynasty/internal/domain"
	"dynasty/internal/events"
	"dynasty/internal/kvstore"
	"dynasty/internal/models"
	"dynasty/internal/projector"
	"dynasty/internal/session"
	"dynasty/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key-1"

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Port:    0,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{
					Key:  testKey,
					Name: "dashboard",
					Permissions: []string{
						"write:session", "read:bookings", "write:bookings",
						"read:stats", "read:inquiries",
					},
				},
				{Key: "read-only-key", Name: "viewer", Permissions: []string{"read:bookings"}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}
}

type apiFixture struct {
	handler  http.Handler
	sessions domain.SessionManager
	store    domain.BookingStore
	bus      *events.Bus
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWithConfig(t, testAPIConfig())
}

func newAPIFixtureWithConfig(t *testing.T, cfg config.APIConfig) *apiFixture {
	t.Helper()
	kv := kvstore.NewMemory()
	t.Cleanup(func() { kv.Close() })

	logger := zerolog.Nop()
	sessions := session.NewManager(kv, 24*time.Hour, &logger)
	bookings := store.New(kv, sessions, &logger)
	proj := projector.New([]string{"catering", "reservation"}, time.Minute)
	bus := events.NewBus()

	srv := NewHTTPServer(cfg, bookings, sessions, proj, nil, bus, &logger)
	return &apiFixture{handler: srv.Handler(), sessions: sessions, store: bookings, bus: bus}
}

func (f *apiFixture) do(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/session/login", testKey,
		map[string]string{"name": "Asha", "email": "asha@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuth(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("MissingKey", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("WrongKey", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/bookings", "bogus", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("InsufficientPermission", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/bookings", "read-only-key",
			map[string]string{"name": "Asha"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("ValidKey", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/bookings", testKey, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("AuthDisabledAllowsAll", func(t *testing.T) {
		cfg := testAPIConfig()
		cfg.Auth.Enabled = false
		open := newAPIFixtureWithConfig(t, cfg)

		rec := open.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 2}
	f := newAPIFixtureWithConfig(t, cfg)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/bookings", testKey, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/bookings", testKey, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, "/api/v1/bookings", testKey, nil).Code)
}

func TestSessionEndpoints(t *testing.T) {
	t.Run("LoginSuccess", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/session/login", testKey,
			map[string]string{"name": "Asha", "email": "asha@example.com"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "asha@example.com", resp["email"])
	})

	t.Run("LoginValidation", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodPost, "/api/v1/session/login", testKey,
			map[string]string{"name": "A", "email": "asha@example.com"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(t, http.MethodPost, "/api/v1/session/login", testKey,
			map[string]string{"name": "Asha", "email": "nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Logout", func(t *testing.T) {
		f := newAPIFixture(t)
		f.login(t)

		rec := f.do(t, http.MethodPost, "/api/v1/session/logout", testKey, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		_, ok := f.sessions.Current(context.Background())
		assert.False(t, ok)
	})

	t.Run("LogoutWithPurge", func(t *testing.T) {
		f := newAPIFixture(t)
		f.login(t)

		rec := f.do(t, http.MethodPost, "/api/v1/bookings", testKey,
			map[string]any{"name": "Asha", "people": 2})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(t, http.MethodPost, "/api/v1/session/logout?purge=1", testKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		f.login(t)
		bookings, err := f.store.Load(context.Background(), "asha@example.com")
		require.NoError(t, err)
		assert.Empty(t, bookings)
	})
}

func TestBookingEndpoints(t *testing.T) {
	t.Run("CreateAndList", func(t *testing.T) {
		f := newAPIFixture(t)
		f.login(t)

		rec := f.do(t, http.MethodPost, "/api/v1/bookings", testKey,
			map[string]any{"name": "Asha", "people": 4, "service": "catering"})
		require.Equal(t, http.StatusCreated, rec.Code)

		var created models.Booking
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, models.StatusPending, created.Status)

		rec = f.do(t, http.MethodGet, "/api/v1/bookings", testKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var listed struct {
			Bookings []models.Booking `json:"bookings"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
		require.Len(t, listed.Bookings, 1)
		assert.Equal(t, created.ID, listed.Bookings[0].ID)
	})

	t.Run("ListWithoutSessionIsEmpty", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, "/api/v1/bookings", testKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"bookings":[]}`, rec.Body.String())
	})

	t.Run("ConfirmAndCancel", func(t *testing.T) {
		f := newAPIFixture(t)
		f.login(t)

		rec := f.do(t, http.MethodPost, "/api/v1/bookings", testKey, map[string]any{"name": "Asha"})
		require.Equal(t, http.StatusCreated, rec.Code)
		var created models.Booking
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

		rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+created.ID+"/confirm", testKey, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+created.ID+"/cancel", testKey, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		// Cancelled is final: re-confirm reports not found / not permitted.
		rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+created.ID+"/confirm", testKey, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("UnknownBookingID", func(t *testing.T) {
		f := newAPIFixture(t)
		f.login(t)

		rec := f.do(t, http.MethodPost, "/api/v1/bookings/FD_0_missing/confirm", testKey, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("UnknownAction", func(t *testing.T) {
		f := newAPIFixture(t)
		f.login(t)

		rec := f.do(t, http.MethodPost, "/api/v1/bookings/FD_1_abc/archive", testKey, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("CreatePublishesEvent", func(t *testing.T) {
		f := newAPIFixture(t)
		f.login(t)

		var got events.BookingEventPayload
		f.bus.Subscribe(events.EventBookingCreated, func(ev *events.Event) error {
			return json.Unmarshal(ev.Payload, &got)
		})

		rec := f.do(t, http.MethodPost, "/api/v1/bookings", testKey, map[string]any{"name": "Asha"})
		require.Equal(t, http.StatusCreated, rec.Code)

		assert.NotEmpty(t, got.BookingID)
		assert.Equal(t, "asha@example.com", got.Owner)
		assert.Equal(t, "actor", got.ChangedBy)
	})
}

func TestViewEndpoints(t *testing.T) {
	t.Run("Stats", func(t *testing.T) {
		f := newAPIFixture(t)
		f.login(t)

		for i := 0; i < 3; i++ {
			rec := f.do(t, http.MethodPost, "/api/v1/bookings", testKey, map[string]any{"name": "Asha"})
			require.Equal(t, http.StatusCreated, rec.Code)
		}

		rec := f.do(t, http.MethodGet, "/api/v1/stats", testKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Stats       projector.Stats `json:"stats"`
			ActiveCount int             `json:"active_count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Stats.Total)
		assert.Equal(t, 3, resp.Stats.Pending)
		assert.Equal(t, 3, resp.ActiveCount)
	})

	t.Run("Dashboard", func(t *testing.T) {
		f := newAPIFixture(t)
		f.login(t)

		rec := f.do(t, http.MethodPost, "/api/v1/bookings", testKey, map[string]any{"name": "Asha"})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(t, http.MethodGet, "/api/v1/dashboard", testKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var view projector.DashboardView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		require.Len(t, view.Cards, 1)
		assert.True(t, view.Cards[0].AwaitingAutoConfirm)
	})

	t.Run("InquiriesWithoutSourceIsEmpty", func(t *testing.T) {
		f := newAPIFixture(t)

		rec := f.do(t, http.MethodGet, "/api/v1/inquiries", testKey, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"inquiries":[]}`, rec.Body.String())
	})
}

func TestMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/v1/bookings", testKey, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/session/login", testKey, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
