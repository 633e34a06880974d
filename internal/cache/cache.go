// Package cache memoizes read-query results per authenticated session with a
// fixed TTL, and computes an ETag digest over each result for HTTP consumers.
//
// Invalidation is deliberately coarse: any successful mutation clears every
// session store. There is no per-key invalidation protocol.
package cache

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/viccon/sturdyc"
)

const (
	DefaultTTL = 300 * time.Second

	storeCapacity      = 10000
	storeShards        = 64
	evictionPercentage = 10
)

// Manager owns one cache store per session. Stores are created lazily on
// first fetch and dropped wholesale on invalidation.
type Manager struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[uint]*sturdyc.Client[any]
}

func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		ttl:      ttl,
		sessions: make(map[uint]*sturdyc.Client[any]),
	}
}

func (m *Manager) store(session uint) *sturdyc.Client[any] {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.sessions[session]
	if !ok {
		client = sturdyc.New[any](storeCapacity, storeShards, m.ttl, evictionPercentage)
		m.sessions[session] = client
	}
	return client
}

// Invalidate drops every session store. Called after any successful mutation.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[uint]*sturdyc.Client[any])
}

// FetchWith returns the cached value for key in the given session store, or
// invokes fetchFn, caches the result for the manager's TTL and returns it.
func FetchWith[T any](ctx context.Context, m *Manager, session uint, key string, fetchFn func(ctx context.Context) (T, error)) (T, error) {
	result, err := m.store(session).GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// Default is the process-wide manager used by the handlers. TTL comes from
// CACHE_TTL_SECONDS, defaulting to five minutes.
var Default = NewManager(ttlFromEnv())

func ttlFromEnv() time.Duration {
	raw := os.Getenv("CACHE_TTL_SECONDS")
	if raw == "" {
		return DefaultTTL
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return DefaultTTL
	}
	return time.Duration(seconds) * time.Second
}

// Fetch is FetchWith against the default manager.
func Fetch[T any](ctx context.Context, session uint, key string, fetchFn func(ctx context.Context) (T, error)) (T, error) {
	return FetchWith(ctx, Default, session, key, fetchFn)
}

// Invalidate clears the default manager.
func Invalidate() {
	Default.Invalidate()
}
