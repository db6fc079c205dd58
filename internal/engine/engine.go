package engine

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dynasty/internal/domain"
	"dynasty/internal/events"
	"dynasty/internal/metrics"
	"dynasty/internal/models"
	"dynasty/internal/projector"

	"github.com/rs/zerolog"
)

// Renderer consumes the projected dashboard view. The engine never touches
// presentation beyond handing over this value.
type Renderer interface {
	Render(view projector.DashboardView)
}

// Config tunes the sweep cadence. Zero values fall back to the reference
// timings (10s tick, 60s confirmation, 100ms debounce, wall clock).
type Config struct {
	TickInterval      time.Duration
	ConfirmAfter      time.Duration
	ReconcileDebounce time.Duration
	Now               func() time.Time
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = models.EngineTickInterval
	}
	if c.ConfirmAfter <= 0 {
		c.ConfirmAfter = models.AutoConfirmThreshold
	}
	if c.ReconcileDebounce <= 0 {
		c.ReconcileDebounce = models.ReconcileDebounce
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Engine drives the auto-confirmation state machine: a level-triggered
// sweep over the owner's partition, once at start and then on every tick.
// Elapsed time is recomputed from absolute CreatedAt, so bookings made
// while the engine was not running are picked up on the first pass and a
// redundant sweep is a no-op.
type Engine struct {
	store    domain.BookingStore
	sessions domain.SessionManager
	bus      domain.EventPublisher
	proj     *projector.Projector
	renderer Renderer
	changes  <-chan string
	cfg      Config
	logger   *zerolog.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

func New(
	store domain.BookingStore,
	sessions domain.SessionManager,
	bus domain.EventPublisher,
	proj *projector.Projector,
	renderer Renderer,
	changes <-chan string,
	cfg Config,
	logger *zerolog.Logger,
) *Engine {
	cfg.applyDefaults()
	return &Engine{
		store:    store,
		sessions: sessions,
		bus:      bus,
		proj:     proj,
		renderer: renderer,
		changes:  changes,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches the recurring sweep. Calling Start on a running engine is
// a no-op, so repeated start/stop cycles never stack schedules.
func (e *Engine) Start(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go e.loop(ctx)
}

// Stop releases the recurring schedule. Idempotent.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	e.wg.Wait()

	e.debounceMu.Lock()
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	e.debounceMu.Unlock()
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	// First pass immediately so a reloaded context catches up at once.
	if _, err := e.Sweep(ctx); err != nil {
		e.logger.Error().Err(err).Msg("initial sweep failed")
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.logger.Error().Err(err).Msg("sweep failed")
			}
		case key, ok := <-e.changes:
			if !ok {
				e.changes = nil
				continue
			}
			if e.relevantKey(ctx, key) {
				e.Resume(ctx)
			}
		}
	}
}

// Sweep runs one evaluation pass: every pending booking whose elapsed time
// has reached the threshold becomes confirmed with the auto flag set. When
// nothing transitions, nothing is persisted and nothing is rendered.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	metrics.IncEngineTick()

	owner, ok := e.store.Owner(ctx)
	if !ok {
		return 0, nil
	}

	bookings, err := e.store.Load(ctx, owner)
	if err != nil {
		return 0, err
	}

	now := e.cfg.Now()
	confirmed := 0
	for i := range bookings {
		if bookings[i].Status != models.StatusPending {
			continue
		}
		if now.Sub(bookings[i].CreatedAt) < e.cfg.ConfirmAfter {
			continue
		}

		bookings[i].Status = models.StatusConfirmed
		bookings[i].UpdatedAt = now
		bookings[i].AutoConfirmed = true
		confirmed++

		payload := events.NewBookingPayload(owner, bookings[i], "engine")
		if err := e.bus.PublishJSON(events.EventBookingAutoConfirmed, payload); err != nil {
			e.logger.Error().Err(err).Str("booking_id", bookings[i].ID).Msg("publish auto-confirm event")
		}
	}

	if confirmed == 0 {
		return 0, nil
	}

	if err := e.store.Save(ctx, owner, bookings); err != nil {
		return 0, err
	}

	metrics.AddAutoConfirmed(confirmed)
	e.logger.Info().Int("count", confirmed).Str("owner", owner).Msg("bookings auto-confirmed")

	e.render(bookings, now)
	return confirmed, nil
}

// Reconcile reloads the partition from persisted state and re-projects the
// full view. This is the hook for externally observed storage changes; the
// fresh load guarantees a stale in-memory snapshot never overwrites a
// concurrent update.
func (e *Engine) Reconcile(ctx context.Context) error {
	now := e.cfg.Now()

	owner, ok := e.store.Owner(ctx)
	if !ok {
		e.render(nil, now)
		return nil
	}

	bookings, err := e.store.Load(ctx, owner)
	if err != nil {
		return err
	}

	e.render(bookings, now)
	return nil
}

// Resume schedules a single debounced reconciliation, coalescing bursts of
// change notifications and letting in-flight writes settle first.
func (e *Engine) Resume(ctx context.Context) {
	e.debounceMu.Lock()
	defer e.debounceMu.Unlock()

	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
	}
	e.debounceTimer = time.AfterFunc(e.cfg.ReconcileDebounce, func() {
		if err := e.Reconcile(ctx); err != nil {
			e.logger.Error().Err(err).Msg("reconcile failed")
		}
	})
}

// relevantKey filters the storage change feed down to the keys this context
// cares about: the three identity fields and the active owner's partition.
func (e *Engine) relevantKey(ctx context.Context, key string) bool {
	switch key {
	case models.KeyUserName, models.KeyUserEmail, models.KeyAuthToken:
		return true
	}
	if !strings.HasPrefix(key, models.BookingsKeyPrefix) {
		return false
	}

	sess, ok := e.sessions.Current(ctx)
	return ok && key == models.BookingsKey(sess.Email)
}

func (e *Engine) render(bookings []models.Booking, now time.Time) {
	if e.renderer == nil {
		return
	}
	e.renderer.Render(e.proj.Project(bookings, now))
}
