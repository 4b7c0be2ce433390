// Package redislock provides a Redis backed mutex used to serialise charge
// aging between service instances.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Name of the mutex guarding charge aging.
const Name = "billing:age-charges"

// Config is the required properties to use the lock.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Expiry bounds how long a crashed holder keeps the lock.
	Expiry time.Duration
	// Tries is how many times Acquire tries before giving up.
	Tries int
}

// Open connects to Redis and checks it answers.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Locker hands out the aging mutex.
type Locker struct {
	log *slog.Logger
	rs  *redsync.Redsync
	cfg Config
}

// New constructs a Locker using client.
func New(log *slog.Logger, client *redis.Client, cfg Config) *Locker {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 10 * time.Second
	}
	if cfg.Tries <= 0 {
		cfg.Tries = 32
	}

	return &Locker{
		log: log,
		rs:  redsync.New(goredis.NewPool(client)),
		cfg: cfg,
	}
}

// Acquire blocks until the mutex is held, ctx is done or the tries run out.
func (l *Locker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	m := l.rs.NewMutex(Name,
		redsync.WithExpiry(l.cfg.Expiry),
		redsync.WithTries(l.cfg.Tries),
	)

	if err := m.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock %s: %w", Name, err)
	}

	release := func(ctx context.Context) error {
		ok, err := m.UnlockContext(ctx)
		switch {
		case err != nil:
			l.log.ErrorContext(ctx, "redislock", "status", "unlock failed", "mutex", Name, "ERROR", err)
			return fmt.Errorf("unlock %s: %w", Name, err)
		case !ok:
			return errors.New("unlock " + Name + ": lock expired before release")
		}
		return nil
	}

	return release, nil
}
