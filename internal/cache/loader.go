package cache

import (
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader fills a Cache on miss. Concurrent misses on the same key share one
// call to load.
type Loader[T any] struct {
	cache    Cache[T]
	group    singleflight.Group
	onLookup func(hit bool)

	// generation moves on every Invalidate. A fill that started under an
	// older generation may have read data the invalidation was meant to
	// drop, so its result is returned but not stored.
	generation atomic.Uint64
}

func NewLoader[T any](c Cache[T]) *Loader[T] {
	return &Loader[T]{cache: c}
}

// OnLookup registers fn to be told whether each Get was served from the
// cache.
func (l *Loader[T]) OnLookup(fn func(hit bool)) *Loader[T] {
	l.onLookup = fn
	return l
}

// Get returns the cached value for key, calling load to fill it on a miss.
// Errors are returned to every waiter and never cached.
func (l *Loader[T]) Get(key string, load func() (T, error)) (T, error) {
	v, ok := l.cache.Get(key)
	if l.onLookup != nil {
		l.onLookup(ok)
	}
	if ok {
		return v, nil
	}

	gen := l.generation.Load()
	// Callers arriving after an invalidation must not join a fill that
	// started before it.
	flight := key + "#" + strconv.FormatUint(gen, 10)
	res, err, _ := l.group.Do(flight, func() (any, error) {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		if l.generation.Load() == gen {
			l.cache.Set(key, v)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Invalidate drops every entry of fn for the given leading arguments and
// keeps fills already in flight from storing what they read.
func (l *Loader[T]) Invalidate(fn string, args ...any) {
	l.generation.Add(1)
	Invalidate(l.cache, fn, args...)
}

// Cache exposes the underlying store.
func (l *Loader[T]) Cache() Cache[T] {
	return l.cache
}
