// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/palisade/internal/metrics"
)

// Loader produces the value for a missing key.
type Loader[V any] func(ctx context.Context) (V, error)

// Stats tracks cache performance.
type Stats struct {
	Hits   int64
	Misses int64
	Loads  int64
	Errors int64
	Size   int
}

// Loading is a size-bounded, expiring cache that loads missing values.
// It is safe for concurrent use.
type Loading[K comparable, V any] struct {
	name  string
	lru   *expirable.LRU[K, V]
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	loads  atomic.Int64
	errors atomic.Int64
}

// NewLoading creates a cache holding at most size entries for ttl.
// A zero ttl disables expiry; a zero size means unbounded.
func NewLoading[K comparable, V any](name string, size int, ttl time.Duration) *Loading[K, V] {
	return &Loading[K, V]{
		name: name,
		lru:  expirable.NewLRU[K, V](size, nil, ttl),
	}
}

// Name returns the cache name used in metrics.
func (c *Loading[K, V]) Name() string { return c.name }

// GetIfPresent returns a cached value without loading.
func (c *Loading[K, V]) GetIfPresent(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	c.record(ok)
	return v, ok
}

// Get returns the cached value for key or calls load. Concurrent callers
// for the same key share a single load, which is not cancelled with the
// caller that started it. A caller whose ctx ends stops waiting. Errors
// are not cached.
func (c *Loading[K, V]) Get(ctx context.Context, key K, load Loader[V]) (V, error) {
	var zero V
	if v, ok := c.lru.Get(key); ok {
		c.record(true)
		return v, nil
	}
	c.record(false)

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprint(key), func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		c.loads.Add(1)
		v, err := load(shared)
		if err != nil {
			c.errors.Add(1)
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Put stores a value.
func (c *Loading[K, V]) Put(key K, value V) {
	c.lru.Add(key, value)
}

// Invalidate removes key.
func (c *Loading[K, V]) Invalidate(key K) {
	c.lru.Remove(key)
}

// InvalidateAll removes every entry.
func (c *Loading[K, V]) InvalidateAll() {
	c.lru.Purge()
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Loading[K, V]) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of the counters.
func (c *Loading[K, V]) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Loads:  c.loads.Load(),
		Errors: c.errors.Load(),
		Size:   c.lru.Len(),
	}
}

// HitRate returns the hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *Loading[K, V]) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	metrics.RecordCacheLookup(c.name, hit)
}
