package kvstore

import (
	"context"
	"fmt"
	"strings"

	"dynasty/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisKeyPrefix    = "profile:"
	redisChangesTopic = "profile:changes"
)

// Redis is the shared profile store. Every write is published on a pub/sub
// channel tagged with this instance's origin id, so Watch only delivers
// changes made by other contexts (the cross-tab storage signal).
type Redis struct {
	client   *redis.Client
	origin   string
	logger   *zerolog.Logger
	watchers watcherSet
	cancel   context.CancelFunc
}

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedis(client *redis.Client, logger *zerolog.Logger) *Redis {
	r := &Redis{
		client: client,
		origin: uuid.NewString(),
		logger: logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.listen(ctx)

	return r
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	r.publish(ctx, key)
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete %q: %w", key, err)
	}
	r.publish(ctx, key)
	return nil
}

func (r *Redis) Watch() <-chan string {
	return r.watchers.subscribe()
}

func (r *Redis) Close() error {
	r.cancel()
	r.watchers.close()
	return nil
}

func (r *Redis) publish(ctx context.Context, key string) {
	payload := r.origin + "|" + key
	if err := r.client.Publish(ctx, redisChangesTopic, payload).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("publish change notification")
	}
}

func (r *Redis) listen(ctx context.Context) {
	sub := r.client.Subscribe(ctx, redisChangesTopic)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			origin, key, found := strings.Cut(msg.Payload, "|")
			if !found || origin == r.origin {
				continue
			}
			r.watchers.notify(key)
		}
	}
}

// Ping verifies the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
