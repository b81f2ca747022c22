// Package lock serializes posting runs across service replicas.
package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"CoopLedgerSaas/internal/errs"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Release frees a held lock.
type Release func(ctx context.Context) error

type Locker interface {
	// TryAcquire takes name without waiting. A lock held elsewhere yields a
	// validation error so callers can report it to the operator.
	TryAcquire(ctx context.Context, name string) (Release, error)
}

type Redis struct {
	rs  *redsync.Redsync
	ttl time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{rs: redsync.New(goredis.NewPool(client)), ttl: ttl}
}

// Dial parses url, pings the server and returns the client.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errs.Validation("invalid redis url: %v", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errs.External("redis unreachable", err)
	}
	return client, nil
}

func (r *Redis) TryAcquire(ctx context.Context, name string) (Release, error) {
	m := r.rs.NewMutex(name, redsync.WithExpiry(r.ttl), redsync.WithTries(1))
	if err := m.LockContext(ctx); err != nil {
		if contended(err) {
			return nil, errs.Validation("%s is already running", name)
		}
		return nil, errs.External("acquire lock", err)
	}
	return func(ctx context.Context) error {
		_, err := m.UnlockContext(ctx)
		return err
	}, nil
}

func contended(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}

// Local is an in-process Locker for single-replica deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *Local {
	return &Local{held: map[string]bool{}}
}

func (l *Local) TryAcquire(_ context.Context, name string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, errs.Validation("%s is already running", name)
	}
	l.held[name] = true
	return func(context.Context) error {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
		return nil
	}, nil
}
