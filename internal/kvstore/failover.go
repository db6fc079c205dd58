package kvstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dynasty/internal/domain"

	"github.com/rs/zerolog"
)

// Failover serves from a primary store and degrades to a fallback when the
// primary errors. The primary is probed again after a cool-down so a
// recovered redis takes back over without a restart.
type Failover struct {
	primary  domain.KeyValue
	fallback domain.KeyValue
	logger   *zerolog.Logger
	isDown   atomic.Bool
	mu       sync.Mutex
	lastFail time.Time
	coolDown time.Duration
}

func NewFailover(primary, fallback domain.KeyValue, logger *zerolog.Logger) *Failover {
	return &Failover{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		coolDown: time.Minute,
	}
}

func (f *Failover) Get(ctx context.Context, key string) (string, bool, error) {
	if f.primaryUsable() {
		val, ok, err := f.primary.Get(ctx, key)
		if err == nil {
			f.markUp()
			return val, ok, nil
		}
		f.markDown(err, "get")
	}
	return f.fallback.Get(ctx, key)
}

func (f *Failover) Set(ctx context.Context, key, value string) error {
	if f.primaryUsable() {
		err := f.primary.Set(ctx, key, value)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err, "set")
	}
	return f.fallback.Set(ctx, key, value)
}

func (f *Failover) Delete(ctx context.Context, key string) error {
	if f.primaryUsable() {
		err := f.primary.Delete(ctx, key)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err, "delete")
	}
	return f.fallback.Delete(ctx, key)
}

// Watch merges both change feeds; during degradation the fallback still
// reports local writes while the primary feed stays silent.
func (f *Failover) Watch() <-chan string {
	out := make(chan string, 16)
	forward := func(in <-chan string) {
		for key := range in {
			select {
			case out <- key:
			default:
			}
		}
	}
	go forward(f.primary.Watch())
	go forward(f.fallback.Watch())
	return out
}

func (f *Failover) Close() error {
	err := f.primary.Close()
	if ferr := f.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}

// primaryUsable reports whether the primary should be tried: either it is
// healthy, or the cool-down since the last failure has elapsed.
func (f *Failover) primaryUsable() bool {
	if !f.isDown.Load() {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Since(f.lastFail) > f.coolDown
}

func (f *Failover) markDown(err error, op string) {
	f.logger.Error().Err(err).Str("op", op).Msg("primary profile store failed, using fallback")
	f.isDown.Store(true)
	f.mu.Lock()
	f.lastFail = time.Now()
	f.mu.Unlock()
}

func (f *Failover) markUp() {
	if f.isDown.Load() {
		f.logger.Info().Msg("primary profile store recovered")
		f.isDown.Store(false)
	}
}
