package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dynasty/internal/mail"
	"dynasty/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskBookingCreated = "booking_created"
	TaskStatusChanged  = "status_changed"
)

// MailTask is one queued notification dispatch.
type MailTask struct {
	Type      string         `json:"type"`
	Owner     string         `json:"owner"`
	Booking   models.Booking `json:"booking"`
	Attempt   int            `json:"attempt"`
	CreatedAt time.Time      `json:"created_at"`
}

// Dispatcher sends the notification emails for one booking.
type Dispatcher interface {
	SendBookingEmails(ctx context.Context, booking models.Booking) mail.Results
}

// NotifyWorker drains queued mail tasks off the booking path. Tasks land in
// redis when available for cross-restart durability and fall back to an
// in-memory channel otherwise. Delivery is best-effort with backoff; a task
// that exhausts its retries goes to the dead-letter list and the booking
// itself is never touched.
type NotifyWorker struct {
	mailer        Dispatcher
	redis         *redis.Client
	retry         RetryPolicy
	queue         chan MailTask
	queueKey      string
	deadLetterKey string
	pollInterval  time.Duration
	logger        *zerolog.Logger
}

func NewNotifyWorker(mailer Dispatcher, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *NotifyWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &NotifyWorker{
		mailer:        mailer,
		redis:         redisClient,
		retry:         retry,
		queue:         make(chan MailTask, models.WorkerQueueSize),
		queueKey:      "notify:queue",
		deadLetterKey: "notify:deadletter",
		pollInterval:  time.Second,
		logger:        logger,
	}
}

// Enqueue schedules a notification. Never blocks the caller: when both
// redis and the channel are unavailable the task is dropped with a log line.
func (w *NotifyWorker) Enqueue(ctx context.Context, task MailTask) error {
	if task.Type == "" {
		return errors.New("task type is required")
	}
	if task.Booking.ID == "" {
		return errors.New("booking id is required")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Error().Str("booking_id", task.Booking.ID).Msg("notification queue full, task dropped")
	}
	return nil
}

// Start runs the dispatch loop until ctx is cancelled.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notification worker started")
	defer w.logger.Info().Msg("notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.queue:
			w.process(ctx, task)
			continue
		default:
		}

		if task, ok := w.tryRedis(ctx); ok {
			w.process(ctx, task)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case task := <-w.queue:
			w.process(ctx, task)
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *NotifyWorker) process(ctx context.Context, task MailTask) {
	results := w.mailer.SendBookingEmails(ctx, task.Booking)

	if dispatched(results) {
		w.logger.Debug().
			Str("booking_id", task.Booking.ID).
			Str("type", task.Type).
			Msg("notification dispatched")
		return
	}

	attempt := task.Attempt + 1
	if attempt >= w.retry.MaxRetries {
		w.logger.Error().
			Str("booking_id", task.Booking.ID).
			Int("attempts", attempt).
			Msg("notification failed permanently")
		w.pushDeadLetter(ctx, task)
		return
	}

	task.Attempt = attempt
	delay := w.retry.NextDelay(attempt)
	w.logger.Warn().
		Str("booking_id", task.Booking.ID).
		Int("attempt", attempt).
		Dur("retry_in", delay).
		Msg("notification failed, retrying")

	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		_ = w.Enqueue(ctx, task)
	})
}

// dispatched reports whether at least one attempted recipient succeeded.
// A booking with no reachable recipient counts as dispatched: there is
// nothing left to retry.
func dispatched(r mail.Results) bool {
	attempted := false
	for _, res := range []mail.Result{r.Customer, r.Restaurant} {
		if !res.Attempted {
			continue
		}
		attempted = true
		if res.Success {
			return true
		}
	}
	return !attempted
}

func (w *NotifyWorker) tryRedis(ctx context.Context) (MailTask, bool) {
	if w.redis == nil {
		return MailTask{}, false
	}

	res, err := w.redis.BRPop(ctx, w.pollInterval, w.queueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("redis BRPOP error")
		}
		return MailTask{}, false
	}
	if len(res) != 2 {
		return MailTask{}, false
	}

	var task MailTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode queued notification")
		return MailTask{}, false
	}
	return task, true
}

func (w *NotifyWorker) pushRedis(ctx context.Context, task MailTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.queueKey, data).Err()
}

func (w *NotifyWorker) pushDeadLetter(ctx context.Context, task MailTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Msg("encode deadletter task")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Msg("deadletter push failed")
	}
}
