// Package feedcache is an offline-first TTL cache for remote
// vulnerability feeds. Fresh entries are served without touching the
// network; refreshes are single-flight per key; readers arriving while a
// refresh is in flight get the stale copy instead of blocking. Entries
// can be persisted to disk so later runs start warm.
package feedcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scanforge/scanforge/pkg/duration"
	"github.com/scanforge/scanforge/pkg/jsonutil"
	"github.com/scanforge/scanforge/pkg/metrics"
)

// State classifies an entry at a point in time.
type State int

const (
	Missing State = iota
	Fresh
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "missing"
	}
}

// Entry is one cached value. TTL is kept in nanoseconds so the persisted
// form stays plain JSON. TTLSeconds is only read from files written before
// ttl_ns existed.
type Entry[V any] struct {
	Key        string    `json:"key"`
	Value      V         `json:"value"`
	FetchedAt  time.Time `json:"fetched_at"`
	TTLNanos   int64     `json:"ttl_ns"`
	TTLSeconds int64     `json:"ttl_seconds,omitempty"`
}

// TTL returns the entry's time to live.
func (e Entry[V]) TTL() time.Duration {
	if e.TTLNanos > 0 {
		return time.Duration(e.TTLNanos)
	}
	return time.Duration(e.TTLSeconds) * time.Second
}

// StateAt reports whether e is fresh at now.
func (e Entry[V]) StateAt(now time.Time) State {
	if now.Sub(e.FetchedAt) < e.TTL() {
		return Fresh
	}
	return Stale
}

// Lookup is a successful read.
type Lookup[V any] struct {
	Value     V
	State     State // Fresh, or Stale when served inside the grace window
	FetchedAt time.Time
}

// Fetcher loads the current value for key from the network.
type Fetcher[V any] func(ctx context.Context, key string) (V, error)

// Options configures a cache.
type Options struct {
	// Name identifies the feed in logs, metrics and the persisted file.
	Name string

	// TTL is how long an entry stays fresh.
	TTL time.Duration

	// FetchTimeout bounds one refresh. The fetch is detached from the
	// caller's context because other callers may be waiting on it.
	FetchTimeout time.Duration

	// StaleGrace allows serving a stale entry for this long past its TTL
	// when a refresh fails. Zero means a failed refresh of a stale entry
	// yields ErrUnavailable.
	StaleGrace time.Duration

	// Dir persists entries to <Dir>/<Name>.json. Empty keeps the cache in
	// memory only.
	Dir string

	// Now overrides the clock in tests.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Stats counts cache outcomes since creation.
type Stats struct {
	Hits      int64
	Stale     int64
	Misses    int64
	Refreshes int64
	Failures  int64
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	opts Options

	mu       sync.RWMutex
	entries  map[string]Entry[V]
	inflight map[string]bool
	group    singleflight.Group

	hits, stale, misses, refreshes, failures atomic.Int64
}

// New creates a cache. A persisted file, if present, is loaded; a corrupt
// file is logged and ignored.
func New[V any](opts Options) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = duration.FeedTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = duration.FeedRequest
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Cache[V]{
		opts:     opts,
		entries:  make(map[string]Entry[V]),
		inflight: make(map[string]bool),
	}
	if err := c.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		opts.Logger.Warn("ignoring unreadable feed cache",
			slog.String("feed", opts.Name),
			slog.String("path", c.path()),
			slog.String("error", err.Error()))
	}
	return c
}

// Peek returns the entry for key and its current state without fetching.
func (c *Cache[V]) Peek(key string) (Entry[V], State) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return e, Missing
	}
	return e, e.StateAt(c.opts.Now())
}

// Put stores a freshly fetched value.
func (c *Cache[V]) Put(key string, v V) {
	c.mu.Lock()
	c.entries[key] = Entry[V]{
		Key:       key,
		Value:     v,
		FetchedAt: c.opts.Now(),
		TTLNanos:  int64(c.opts.TTL),
	}
	c.mu.Unlock()
}

// Lookup reads key without any network access: fresh entries, and stale
// ones inside the grace window, are served; anything else is
// ErrUnavailable. Staleness is not logged here; callers use Lookup after
// a failed Get has already reported it.
func (c *Cache[V]) Lookup(key string) (Lookup[V], error) {
	e, st := c.Peek(key)
	switch st {
	case Fresh:
		c.count(&c.hits, metrics.CacheHit)
		return Lookup[V]{Value: e.Value, State: Fresh, FetchedAt: e.FetchedAt}, nil
	case Stale:
		if c.withinGrace(e) {
			c.count(&c.stale, metrics.CacheStale)
			return Lookup[V]{Value: e.Value, State: Stale, FetchedAt: e.FetchedAt}, nil
		}
	}
	c.count(&c.misses, metrics.CacheMiss)
	return Lookup[V]{}, fmt.Errorf("%w: %s %q is %s", ErrUnavailable, c.opts.Name, key, st)
}

// Get returns the value for key, refreshing it with fetch when it is not
// fresh.
//
//   - fresh: served, no network
//   - stale, refresh in flight: stale copy served without waiting
//   - stale or missing: refreshed once per key; concurrent callers share it
//   - refresh failed: stale copy inside the grace window, else a
//     *RefreshError wrapping ErrUnavailable
func (c *Cache[V]) Get(ctx context.Context, key string, fetch Fetcher[V]) (Lookup[V], error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	st := Missing
	if ok {
		st = e.StateAt(c.opts.Now())
	}
	if st == Fresh {
		c.mu.Unlock()
		c.count(&c.hits, metrics.CacheHit)
		return Lookup[V]{Value: e.Value, State: Fresh, FetchedAt: e.FetchedAt}, nil
	}
	if st == Stale && c.inflight[key] {
		c.mu.Unlock()
		c.count(&c.stale, metrics.CacheStale)
		return Lookup[V]{Value: e.Value, State: Stale, FetchedAt: e.FetchedAt}, nil
	}
	c.inflight[key] = true
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		defer func() {
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
		}()
		c.count(&c.refreshes, metrics.CacheRefresh)
		// Shared by every waiting caller, so the first caller's cancellation
		// must not fail the others.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
		defer cancel()
		val, err := fetch(fctx, key)
		if err != nil {
			return nil, err
		}
		c.Put(key, val)
		if perr := c.Save(); perr != nil {
			c.opts.Logger.Warn("feed cache not persisted",
				slog.String("feed", c.opts.Name),
				slog.String("error", perr.Error()))
		}
		return val, nil
	})
	if err == nil {
		e, _ := c.Peek(key)
		return Lookup[V]{Value: v.(V), State: Fresh, FetchedAt: e.FetchedAt}, nil
	}

	c.failures.Add(1)
	c.opts.Metrics.CacheRefreshFailed(c.opts.Name)
	if st == Stale && c.withinGrace(e) {
		c.count(&c.stale, metrics.CacheStale)
		c.opts.Logger.Warn("feed refresh failed, serving stale data",
			slog.String("feed", c.opts.Name),
			slog.String("key", key),
			slog.Duration("age", c.opts.Now().Sub(e.FetchedAt)),
			slog.String("error", err.Error()))
		return Lookup[V]{Value: e.Value, State: Stale, FetchedAt: e.FetchedAt}, nil
	}
	c.count(&c.misses, metrics.CacheMiss)
	if st == Stale {
		c.opts.Logger.Warn("feed data stale beyond grace and refresh failed",
			slog.String("feed", c.opts.Name),
			slog.String("key", key),
			slog.Duration("age", c.opts.Now().Sub(e.FetchedAt)),
			slog.String("error", err.Error()))
	}
	return Lookup[V]{}, &RefreshError{Feed: c.opts.Name, Key: key, Err: err}
}

func (c *Cache[V]) withinGrace(e Entry[V]) bool {
	return c.opts.Now().Sub(e.FetchedAt) < e.TTL()+c.opts.StaleGrace
}

func (c *Cache[V]) count(n *atomic.Int64, result string) {
	n.Add(1)
	c.opts.Metrics.CacheLookup(c.opts.Name, result)
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Stale:     c.stale.Load(),
		Misses:    c.misses.Load(),
		Refreshes: c.refreshes.Load(),
		Failures:  c.failures.Load(),
	}
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) path() string {
	if c.opts.Dir == "" {
		return ""
	}
	return filepath.Join(c.opts.Dir, c.opts.Name+".json")
}

// Save writes every entry to the cache file atomically. It is a no-op
// for memory-only caches.
func (c *Cache[V]) Save() error {
	p := c.path()
	if p == "" {
		return nil
	}
	c.mu.RLock()
	entries := make([]Entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	data, err := jsonutil.Marshal(entries)
	if err != nil {
		return fmt.Errorf("feedcache: encode %s: %w", c.opts.Name, err)
	}
	if err := os.MkdirAll(c.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("feedcache: %w", err)
	}
	tmp, err := os.CreateTemp(c.opts.Dir, c.opts.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("feedcache: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("feedcache: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("feedcache: %w", err)
	}
	return os.Rename(tmp.Name(), p)
}

func (c *Cache[V]) load() error {
	p := c.path()
	if p == "" {
		return nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	var entries []Entry[V]
	if err := jsonutil.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("feedcache: decode %s: %w", p, err)
	}
	c.mu.Lock()
	for _, e := range entries {
		c.entries[e.Key] = e
	}
	c.mu.Unlock()
	return nil
}
