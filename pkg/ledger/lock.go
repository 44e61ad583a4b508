package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serialises writers of one ledger key.
type Locker interface {
	// Lock blocks until name is held or ctx is done and returns the release
	// function.
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

// LocalLocker is a keyed mutex for writers within one process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{} // buffered(1); holding the token means holding the lock
	refs int
}

// NewLocalLocker creates an empty keyed mutex.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[name]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[name] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.done(name, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.done(name, kl)
		})
	}, nil
}

func (l *LocalLocker) done(name string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, name)
	}
}

const lockPrefix = "skillscan:ledger:lock:"

// ErrLockTimeout indicates a lock could not be acquired before ctx expired.
var ErrLockTimeout = errors.New("ledger lock not acquired")

// RedisLocker serialises writers across processes using Redis SET NX with a
// TTL. A unique owner ID keeps one instance from releasing another's lock.
type RedisLocker struct {
	client  *redis.Client
	ownerID string
	ttl     time.Duration
	retry   time.Duration
}

// NewRedisLocker creates a locker. The TTL bounds how long a crashed writer
// can block others.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:  client,
		ownerID: generateOwnerID(),
		ttl:     ttl,
		retry:   25 * time.Millisecond,
	}
}

// generateOwnerID creates a unique identifier for this lock holder.
// Format: hostname:pid:random
func generateOwnerID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 8)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(randomBytes))
}

// Acquire attempts to take name once.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockPrefix+name, l.ownerID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// Lock polls Acquire until it succeeds or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, name string) (func(), error) {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.Acquire(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Released with a fresh context: the caller's may be done.
				rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = l.Release(rctx, name)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// releaseScript only deletes the lock if the current owner matches.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release releases name if held by this instance. Safe to call when the lock
// is not held or has expired.
func (l *RedisLocker) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// OwnerID returns the unique identifier for this locker.
func (l *RedisLocker) OwnerID() string { return l.ownerID }
