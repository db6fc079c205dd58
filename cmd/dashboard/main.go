package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dynasty/internal/api"
	"dynasty/internal/config"
	"dynasty/internal/domain"
	"dynasty/internal/engine"
	"dynasty/internal/events"
	"dynasty/internal/forms"
	"dynasty/internal/kvstore"
	"dynasty/internal/logging"
	"dynasty/internal/mail"
	"dynasty/internal/metrics"
	"dynasty/internal/models"
	"dynasty/internal/projector"
	"dynasty/internal/session"
	"dynasty/internal/store"
	"dynasty/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	services, err := loadServices(&logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, kv, err := initStorage(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer kv.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	sessions := session.NewManager(kv, cfg.Session.TTL(), &logger)
	bookings := store.New(kv, sessions, &logger)
	proj := projector.New(services, cfg.Engine.ConfirmAfter())
	bus := events.NewBus()

	notifyWorker := initMail(ctx, cfg, redisClient, &logger)
	subscribeBookingEvents(ctx, bus, notifyWorker, &logger)

	inquirySource := initForms(ctx, cfg, &logger)

	renderer := &logRenderer{logger: logging.Component(&logger, "dashboard")}
	eng := engine.New(bookings, sessions, bus, proj, renderer, kv.Watch(), engine.Config{
		TickInterval:      cfg.Engine.TickInterval(),
		ConfirmAfter:      cfg.Engine.ConfirmAfter(),
		ReconcileDebounce: cfg.Engine.ReconcileDebounce(),
	}, &logger)
	eng.Start(ctx)
	defer eng.Stop()

	startMetrics(ctx, cfg, &logger)

	var httpServer *api.HTTPServer
	if cfg.API.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, bookings, sessions, proj, inquirySource, bus, &logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Int("services", len(services)).
		Bool("api", cfg.API.Enabled).
		Bool("mail", cfg.Mail.Enabled).
		Msg("dashboard started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("dashboard stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "dashboard-main").Logger()

	return cfg, logger, closer, nil
}

func loadServices(logger *zerolog.Logger) ([]string, error) {
	servicesPath := os.Getenv("SERVICES_PATH")
	if servicesPath == "" {
		servicesPath = "configs/services.yaml"
	}
	data, err := os.ReadFile(servicesPath)
	if err != nil {
		logger.Error().Err(err).Str("services_path", servicesPath).Msg("read services")
		return nil, err
	}

	var servicesConfig struct {
		Services []string `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &servicesConfig); err != nil {
		logger.Error().Err(err).Str("services_path", servicesPath).Msg("parse services")
		return nil, err
	}

	if err := config.ValidateServices(servicesConfig.Services); err != nil {
		logger.Error().Err(err).Msg("services validation failed")
		return nil, err
	}

	return servicesConfig.Services, nil
}

// initStorage picks the key-value backend: redis fronted by a memory
// fallback when an address is configured, sqlite otherwise.
func initStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.KeyValue, error) {
	if cfg.Redis.Address != "" {
		redisClient := kvstore.NewRedisClient(cfg.Redis)
		if err := kvstore.Ping(ctx, redisClient); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, failover starts on fallback")
		} else {
			logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
		}

		primary := kvstore.NewRedis(redisClient, logger)
		fallback := kvstore.NewMemory()
		return redisClient, kvstore.NewFailover(primary, fallback, logger), nil
	}

	kv, err := kvstore.NewSQLite(cfg.Storage.Path)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Storage.Path).Msg("init sqlite storage")
		return nil, nil, err
	}
	logger.Info().Str("path", cfg.Storage.Path).Msg("sqlite storage ready")
	return nil, kv, nil
}

func initMail(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) *worker.NotifyWorker {
	if !cfg.Mail.Enabled {
		return nil
	}

	mailer := mail.New(cfg.Mail, logger)
	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	notifyWorker := worker.NewNotifyWorker(mailer, redisClient, retryPolicy, logger)
	go notifyWorker.Start(ctx)
	return notifyWorker
}

func initForms(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.InquirySource {
	if !cfg.Forms.Enabled {
		return nil
	}

	svc, err := forms.NewService(ctx, cfg.Forms.CredentialsFile, cfg.Forms.SpreadsheetID, cfg.Forms.SheetName, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("forms init failed, continuing without inquiries")
		return nil
	}
	if err := svc.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("forms connection test failed, continuing without inquiries")
		return nil
	}

	logger.Info().Msg("form inquiries connected")
	return svc
}

func subscribeBookingEvents(ctx context.Context, bus *events.Bus, notifyWorker *worker.NotifyWorker, logger *zerolog.Logger) {
	if bus == nil || notifyWorker == nil {
		return
	}

	decode := func(ev *events.Event) (events.BookingEventPayload, error) {
		var payload events.BookingEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return payload, err
		}
		return payload, nil
	}

	enqueue := func(taskType string) events.Handler {
		return func(ev *events.Event) error {
			payload, err := decode(ev)
			if err != nil {
				logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
				return nil
			}

			task := worker.MailTask{
				Type:  taskType,
				Owner: payload.Owner,
				Booking: models.Booking{
					ID:            payload.BookingID,
					Status:        payload.Status,
					AutoConfirmed: payload.AutoConfirmed,
					Name:          payload.Name,
					Email:         payload.Email,
					People:        payload.People,
					DateTime:      payload.DateTime,
					Message:       payload.Message,
				},
			}
			if err := notifyWorker.Enqueue(ctx, task); err != nil {
				logger.Error().Err(err).Str("booking_id", payload.BookingID).Msg("event bus: enqueue notification")
			}
			return nil
		}
	}

	bus.Subscribe(events.EventBookingCreated, enqueue(worker.TaskBookingCreated))
	bus.Subscribe(events.EventBookingConfirmed, enqueue(worker.TaskStatusChanged))
	bus.Subscribe(events.EventBookingCancelled, enqueue(worker.TaskStatusChanged))
	bus.Subscribe(events.EventBookingAutoConfirmed, enqueue(worker.TaskStatusChanged))
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// logRenderer is the console rendering sink: a structured snapshot line per
// refresh instead of a DOM.
type logRenderer struct {
	logger zerolog.Logger
}

func (r *logRenderer) Render(view projector.DashboardView) {
	r.logger.Info().
		Int("total", view.Stats.Total).
		Int("pending", view.Stats.Pending).
		Int("confirmed", view.Stats.Confirmed).
		Int("cancelled", view.Stats.Cancelled).
		Int("active", view.ActiveCount).
		Int("cards", len(view.Cards)).
		Msg("dashboard refreshed")
}
