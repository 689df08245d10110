// Package entitylock provides mutual exclusion per string key.
//
// Callers for the same key are served in FIFO order, callers for different
// keys never block each other.
package entitylock

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
)

const loggerName = "entitylock"

// RescheduleKey returns the lock key that serializes timer triggered
// re-evaluations of a repository against each other.
func RescheduleKey(repository string) string {
	return "reschedule:" + repository
}

// AccountKey returns the lock key for account wide operations.
func AccountKey(accountID string) string {
	return "account:" + accountID
}

// PullRequestKey returns the lock key for operations on a pull request.
func PullRequestKey(prID int64) string {
	return "pr:" + strconv.FormatInt(prID, 10)
}

type waiter struct {
	// granted is closed when the lock was handed over to the waiter.
	granted chan struct{}
}

type entry struct {
	waiters []*waiter
}

// Locker holds the lock state for all keys.
// The zero value is not usable, use New().
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *zap.Logger
}

func New() *Locker {
	return &Locker{
		entries: map[string]*entry{},
		logger:  zap.L().Named(loggerName),
	}
}

// Guard represents a held lock.
type Guard struct {
	locker *Locker
	key    string
	w      *waiter
	once   sync.Once
}

// Unlock releases the lock. Calling it multiple times is safe.
func (g *Guard) Unlock() {
	g.once.Do(func() {
		g.locker.release(g.key, g.w)
	})
}

func (g *Guard) Key() string {
	return g.key
}

// Lock blocks until the lock for key is held or ctx is done.
// The returned guard must be released via Guard.Unlock.
func (l *Locker) Lock(ctx context.Context, key string) (*Guard, error) {
	w := &waiter{granted: make(chan struct{})}

	l.mu.Lock()
	e, exists := l.entries[key]
	if !exists {
		e = &entry{}
		l.entries[key] = e
	}

	e.waiters = append(e.waiters, w)
	if len(e.waiters) == 1 {
		close(w.granted)
	}
	l.mu.Unlock()

	select {
	case <-w.granted:
		return &Guard{locker: l, key: key, w: w}, nil

	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.granted:
			// the lock was handed over while the context expired
			l.mu.Unlock()
			l.release(key, w)

		default:
			l._removeWaiter(key, w)
			l.mu.Unlock()
		}

		return nil, fmt.Errorf("waiting for lock %q: %w", key, ctx.Err())
	}
}

// release removes w, which must be the holder of the lock, and hands the
// lock to the next waiter.
func (l *Locker) release(key string, w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists || len(e.waiters) == 0 || e.waiters[0] != w {
		l.logger.DPanic(
			"releasing lock that is not held",
			logfields.Event("lock_release_not_held"),
			logfields.LockKey(key),
		)

		return
	}

	e.waiters[0] = nil
	e.waiters = e.waiters[1:]

	if len(e.waiters) == 0 {
		delete(l.entries, key)
		return
	}

	close(e.waiters[0].granted)
}

func (l *Locker) _removeWaiter(key string, w *waiter) {
	e, exists := l.entries[key]
	if !exists {
		return
	}

	for i, ew := range e.waiters {
		if ew == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			break
		}
	}

	if len(e.waiters) == 0 {
		delete(l.entries, key)
	}
}

// WithLock runs fn while holding the lock for key.
// The lock is released when fn returns or panics, a panic is propagated
// after the lock was released.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	guard, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer guard.Unlock()

	return fn(ctx)
}

// Waiting returns the number of callers holding or waiting for key.
func (l *Locker) Waiting(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, exists := l.entries[key]; exists {
		return len(e.waiters)
	}

	return 0
}

// Len returns the number of keys that are currently locked.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
