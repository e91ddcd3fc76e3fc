// Copyright 2025 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package spcache caches compiled routines of a session.
package spcache

import (
	"context"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pingcap/tidb-routine/pkg/config"
	"github.com/pingcap/tidb-routine/pkg/metrics"
	"github.com/pingcap/tidb-routine/pkg/sp"
	"github.com/pingcap/tidb-routine/pkg/util"
	"github.com/pingcap/tidb-routine/pkg/util/logutil"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// version is bumped whenever a routine is created, altered or dropped. A
// cache seeing a newer version drops everything it holds.
var version atomic.Int64

// InvalidateAll marks every cached routine of every session as stale.
func InvalidateAll() {
	version.Inc()
}

// Version returns the global routine version.
func Version() int64 {
	return version.Load()
}

// Cache is a routine resolver that keeps the routines returned by its source.
// It is owned by one session and is not safe for concurrent lookups.
type Cache struct {
	cache   *ttlcache.Cache[string, *sp.Routine]
	source  sp.RoutineResolver
	version int64
	wg      util.WaitGroupWrapper
}

// New creates a cache in front of source. Entries expire after ttl; when
// capacity is reached the least recently used entry is evicted.
func New(source sp.RoutineResolver, capacity uint64, ttl time.Duration) *Cache {
	cache := ttlcache.New[string, *sp.Routine](
		ttlcache.WithTTL[string, *sp.Routine](ttl),
		ttlcache.WithCapacity[string, *sp.Routine](capacity),
	)
	return &Cache{
		cache:   cache,
		source:  source,
		version: version.Load(),
	}
}

// NewWithConfig creates a cache sized by the routine section of cfg.
func NewWithConfig(source sp.RoutineResolver, cfg *config.Config) *Cache {
	return New(source, cfg.Routine.CacheCapacity, cfg.Routine.CacheTTL.Duration)
}

// Start starts the background task removing expired entries.
func (c *Cache) Start() {
	c.wg.RunWithRecover(c.cache.Start, nil)
}

// Stop stops the background task.
func (c *Cache) Stop() {
	c.cache.Stop()
	c.wg.Wait()
}

func cacheKey(tp sp.RoutineType, name string) string {
	return tp.String() + ":" + strings.ToLower(name)
}

// GetRoutine implements sp.RoutineResolver interface.
func (c *Cache) GetRoutine(ctx context.Context, tp sp.RoutineType, name string) (*sp.Routine, error) {
	if v := version.Load(); v != c.version {
		logutil.Logger(ctx).Debug("routine cache flushed",
			zap.Int64("old-version", c.version), zap.Int64("new-version", v))
		c.cache.DeleteAll()
		c.version = v
	}
	key := cacheKey(tp, name)
	if item := c.cache.Get(key); item != nil {
		metrics.RoutineCacheCounter.WithLabelValues(metrics.LblHit).Inc()
		return item.Value(), nil
	}
	metrics.RoutineCacheCounter.WithLabelValues(metrics.LblMiss).Inc()
	r, err := c.source.GetRoutine(ctx, tp, name)
	if err != nil || r == nil {
		return r, err
	}
	c.cache.Set(key, r, ttlcache.DefaultTTL)
	return r, nil
}

// Invalidate drops one routine.
func (c *Cache) Invalidate(tp sp.RoutineType, name string) {
	c.cache.Delete(cacheKey(tp, name))
}

// Len returns the number of cached routines.
func (c *Cache) Len() int {
	return c.cache.Len()
}
