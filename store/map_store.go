package store

import (
	"context"
	"sync"
	"time"
)

type MapStoreOptions struct {
	// 默认过期时间，0 表示不过期
	DefaultTTL time.Duration `cfg:"defaultTTL"`
}

type mapEntry[V any] struct {
	value    V
	expireAt time.Time
}

func (e mapEntry[V]) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MapStore 进程内存储，过期的键在访问时清理
type MapStore[K comparable, V any] struct {
	mu         sync.RWMutex
	m          map[K]mapEntry[V]
	defaultTTL time.Duration
	now        func() time.Time
}

func NewMapStoreWithOptions[K comparable, V any](options *MapStoreOptions) *MapStore[K, V] {
	s := &MapStore[K, V]{
		m:   make(map[K]mapEntry[V]),
		now: time.Now,
	}
	if options != nil {
		s.defaultTTL = options.DefaultTTL
	}
	return s
}

func (s *MapStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	options := newSetOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if options.IfNotExist {
		if e, exists := s.m[key]; exists && !e.expired(now) {
			return ErrConditionFailed
		}
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}
	e := mapEntry[V]{value: value}
	if expiration > 0 {
		e.expireAt = now.Add(expiration)
	}
	s.m[key] = e
	return nil
}

func (s *MapStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	s.mu.RLock()
	e, exists := s.m[key]
	s.mu.RUnlock()

	if !exists {
		var zero V
		return zero, ErrKeyNotFound
	}
	if e.expired(s.now()) {
		s.mu.Lock()
		if cur, ok := s.m[key]; ok && cur.expired(s.now()) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		var zero V
		return zero, ErrKeyNotFound
	}
	return e.value, nil
}

func (s *MapStore[K, V]) Del(ctx context.Context, key K) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

// Len 当前键数量，包含尚未清理的过期键
func (s *MapStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *MapStore[K, V]) Close() error {
	s.mu.Lock()
	s.m = make(map[K]mapEntry[V])
	s.mu.Unlock()
	return nil
}
