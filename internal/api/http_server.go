package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"dynasty/internal/config"
	"dynasty/internal/domain"
	"dynasty/internal/events"
	"dynasty/internal/metrics"
	"dynasty/internal/models"
	"dynasty/internal/projector"
	"dynasty/internal/session"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPServer is the external actor surface: booking submission, explicit
// confirm/cancel, dashboard projections and the read-only inquiry feed.
type HTTPServer struct {
	cfg       config.APIConfig
	store     domain.BookingStore
	sessions  domain.SessionManager
	proj      *projector.Projector
	inquiries domain.InquirySource
	bus       domain.EventPublisher
	server    *http.Server
	auth      *httpAuth
	logger    *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	store domain.BookingStore,
	sessions domain.SessionManager,
	proj *projector.Projector,
	inquiries domain.InquirySource,
	bus domain.EventPublisher,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:       cfg,
		store:     store,
		sessions:  sessions,
		proj:      proj,
		inquiries: inquiries,
		bus:       bus,
		auth:      newHTTPAuth(cfg),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/session/login", srv.handleLogin)
	mux.HandleFunc("/api/v1/session/logout", srv.handleLogout)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingAction)
	mux.HandleFunc("/api/v1/stats", srv.handleStats)
	mux.HandleFunc("/api/v1/dashboard", srv.handleDashboard)
	mux.HandleFunc("/api/v1/inquiries", srv.handleInquiries)

	handler := srv.loggingMiddleware(srv.auth.wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_login")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := s.sessions.Login(r.Context(), body.Name, body.Email)
	switch {
	case err == session.ErrNameTooShort, err == session.ErrInvalidEmail:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":       sess.Name,
		"email":      sess.Email,
		"login_time": sess.LoginTime.Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_logout")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.URL.Query().Get("purge") == "1" {
		if purger, ok := s.sessions.(interface {
			PurgeBookings(ctx context.Context) error
		}); ok {
			if err := purger.PurgeBookings(r.Context()); err != nil {
				s.logger.Warn().Err(err).Msg("purge bookings on logout")
			}
		}
	}

	if err := s.sessions.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		metrics.IncHTTP("bookings_list")
		s.listBookings(w, r)
	case http.MethodPost:
		metrics.IncHTTP("bookings_create")
		s.createBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.store.Owner(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"bookings": []models.Booking{}})
		return
	}

	bookings, err := s.store.Load(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load bookings failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	var draft models.BookingDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking, err := s.store.Create(r.Context(), draft)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "create booking failed")
		return
	}

	owner, _ := s.store.Owner(r.Context())
	s.publish(events.EventBookingCreated, owner, booking)

	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleBookingAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/")
	id, action, found := strings.Cut(rest, "/")
	if !found || id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var status models.Status
	var eventType string
	switch action {
	case "confirm":
		metrics.IncHTTP("bookings_confirm")
		status, eventType = models.StatusConfirmed, events.EventBookingConfirmed
	case "cancel":
		metrics.IncHTTP("bookings_cancel")
		status, eventType = models.StatusCancelled, events.EventBookingCancelled
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	ok, err := s.store.UpdateStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "booking not found or transition not permitted")
		return
	}

	if owner, authed := s.store.Owner(r.Context()); authed {
		if bookings, err := s.store.Load(r.Context(), owner); err == nil {
			for _, b := range bookings {
				if b.ID == id {
					s.publish(eventType, owner, b)
					break
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("stats")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	bookings := s.snapshot(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":        s.proj.ComputeStats(bookings),
		"active_count": s.proj.ComputeActiveCount(bookings),
	})
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("dashboard")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	view := s.proj.Project(s.snapshot(r.Context()), time.Now())
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleInquiries(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("inquiries")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Best-effort feed: collaborator failure degrades to an empty list.
	inquiries := []models.Inquiry{}
	if s.inquiries != nil {
		if got, err := s.inquiries.Inquiries(r.Context()); err == nil {
			inquiries = got
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"inquiries": inquiries})
}

func (s *HTTPServer) snapshot(ctx context.Context) []models.Booking {
	owner, ok := s.store.Owner(ctx)
	if !ok {
		return nil
	}
	bookings, err := s.store.Load(ctx, owner)
	if err != nil {
		return nil
	}
	return bookings
}

func (s *HTTPServer) publish(eventType, owner string, booking models.Booking) {
	if s.bus == nil {
		return
	}
	payload := events.NewBookingPayload(owner, booking, "actor")
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("publish booking event")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// httpAuth provides API-key auth and per-key rate limiting.
type httpAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func newHTTPAuth(cfg config.APIConfig) *httpAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &httpAuth{cfg: cfg, clients: m}
}

func (a *httpAuth) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = fmt.Errorf("permission denied")

func (a *httpAuth) headerName() string {
	if name := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey)); name != "" {
		return name
	}
	return "x-api-key"
}

func (a *httpAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerName()))
	if apiKey == "" {
		return fmt.Errorf("missing api key header")
	}

	matched := false
	var client config.APIClientKey
	for key, candidate := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			matched = true
			client = candidate
		}
	}
	if !matched {
		return fmt.Errorf("invalid api key")
	}

	return a.checkPermissions(client, r)
}

func (a *httpAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/session/"):
		return "write:session"
	case strings.HasPrefix(path, "/api/v1/bookings"):
		if r.Method == http.MethodGet {
			return "read:bookings"
		}
		return "write:bookings"
	case path == "/api/v1/stats" || path == "/api/v1/dashboard":
		return "read:stats"
	case path == "/api/v1/inquiries":
		return "read:inquiries"
	}
	return ""
}

func (a *httpAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	lim := a.getLimiter(a.clientKey(r))
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *httpAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerName())); apiKey != "" {
		return apiKey
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *httpAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	if actual, loaded := a.limiters.LoadOrStore(key, lim); loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
