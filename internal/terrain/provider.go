// Package terrain resolves ground elevation for geodetic points, backed by
// a TTL cache, a synchronous fast path, and a rate-limited asynchronous
// sampling fallback. It never blocks the per-frame call path and never
// propagates a backend failure to its caller.
package terrain

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/citystride/grounding/internal/queue"
	"github.com/citystride/grounding/internal/scene"
	"github.com/citystride/grounding/pkg/core"
)

// Config holds the provider's tuning values.
type Config struct {
	// DefaultHeight is returned when no cached or queried value exists.
	DefaultHeight float64
	// CacheTTL is how long a cached sample counts as fresh.
	CacheTTL time.Duration
	// SampleInterval rate-limits async sampling kicks.
	SampleInterval time.Duration
}

// DefaultConfig returns the provider defaults (30 s TTL, 200 ms between
// sampling kicks).
func DefaultConfig() Config {
	return Config{
		DefaultHeight:  0,
		CacheTTL:       30 * time.Second,
		SampleInterval: 200 * time.Millisecond,
	}
}

type sample struct {
	height float64
	at     time.Time
}

// pendingSample is an async result waiting to be applied at the frame
// boundary. gen ties it to the cache generation it was sampled for, so
// results from before a teleport are dropped instead of leaking stale
// heights into the new location.
type pendingSample struct {
	key    string
	height float64
	at     time.Time
	gen    uint64
}

// Provider answers "what is the ground height here" synchronously, using
// best-available data. Asynchronous sample results only touch the pending
// queue; ApplyPending folds them into the cache between frames.
type Provider struct {
	source scene.ElevationSource
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	cache    map[string]sample
	gen      uint64
	inFlight bool
	lastKick time.Time
	warned   bool

	pending *queue.Queue[pendingSample]

	now func() time.Time
}

// NewProvider creates a terrain height provider over the given elevation
// source. source may be nil; the provider then degrades to DefaultHeight.
func NewProvider(source scene.ElevationSource, cfg Config, logger *slog.Logger) *Provider {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		source:  source,
		cfg:     cfg,
		logger:  logger,
		cache:   make(map[string]sample),
		pending: queue.New[pendingSample](),
		now:     time.Now,
	}
}

// CacheKey quantizes a geodetic position to a metre-scale bucket
// (5 decimal digits of a degree).
func CacheKey(pos core.GeodeticPosition) string {
	return fmt.Sprintf("%.5f:%.5f",
		pos.Longitude*180/math.Pi,
		pos.Latitude*180/math.Pi,
	)
}

// Height returns the best available ground height for the position. It
// always returns synchronously: a fresh cache entry, the direct query, a
// stale cache entry, or the configured default, in that order. A cache miss
// with no usable fast path kicks an async sample for future frames.
func (p *Provider) Height(pos core.GeodeticPosition) float64 {
	key := CacheKey(pos)
	now := p.now()

	p.mu.Lock()
	s, cached := p.cache[key]
	p.mu.Unlock()

	if cached && now.Sub(s.at) < p.cfg.CacheTTL {
		return s.height
	}

	if h, ok := p.directQuery(pos); ok {
		p.store(key, h, now)
		return h
	}

	p.kickSample(pos, key, now)

	// A stale entry is still the best guess we have.
	if cached {
		return s.height
	}
	return p.cfg.DefaultHeight
}

// ForceSample performs one authoritative terrain query and updates the
// cache before returning. It falls back to the direct query and finally the
// default height on failure; it never returns an error. Reserved for
// teleport preparation, not the per-frame path.
func (p *Provider) ForceSample(ctx context.Context, pos core.GeodeticPosition) float64 {
	key := CacheKey(pos)

	if h, ok := p.authoritativeQuery(ctx, pos); ok {
		p.store(key, h, p.now())
		return h
	}

	if h, ok := p.directQuery(pos); ok {
		p.store(key, h, p.now())
		return h
	}

	return p.cfg.DefaultHeight
}

// ApplyPending folds queued async sample results into the cache. The engine
// calls it at the start of each frame, which keeps cache writes at frame
// boundaries. Results from a previous generation (pre-teleport) and results
// older than the current entry are dropped.
func (p *Provider) ApplyPending() {
	results := p.pending.Drain()
	if len(results) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range results {
		if r.gen != p.gen {
			continue
		}
		if cur, ok := p.cache[r.key]; ok && cur.at.After(r.at) {
			continue
		}
		p.cache[r.key] = sample{height: r.height, at: r.at}
	}
}

// Clear drops the whole cache and any pending results. Called on teleport;
// heights from a previous location are meaningless.
func (p *Provider) Clear() {
	p.pending.Clear()
	p.mu.Lock()
	p.cache = make(map[string]sample)
	p.gen++
	p.inFlight = false
	p.lastKick = time.Time{}
	p.mu.Unlock()
}

// directQuery is the synchronous fast path. Backend panics degrade to "no
// value"; the grounding loop has no better recovery than ground level.
func (p *Provider) directQuery(pos core.GeodeticPosition) (h float64, ok bool) {
	if p.source == nil {
		p.warnOnce("no elevation source configured")
		return 0, false
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("terrain fast path panicked", "panic", r)
			h, ok = 0, false
		}
	}()
	return p.source.ElevationAt(pos.Longitude, pos.Latitude)
}

func (p *Provider) authoritativeQuery(ctx context.Context, pos core.GeodeticPosition) (h float64, ok bool) {
	if p.source == nil {
		return 0, false
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("terrain sampler panicked", "panic", r)
			h, ok = 0, false
		}
	}()
	heights, err := p.source.SampleElevation(ctx, []core.GeodeticPosition{pos})
	if err != nil || len(heights) == 0 {
		p.logger.Debug("authoritative terrain sample failed", "error", err)
		return 0, false
	}
	return heights[0], true
}

// kickSample starts one background sample for the area unless one is
// already in flight or the last kick was under SampleInterval ago.
func (p *Provider) kickSample(pos core.GeodeticPosition, key string, now time.Time) {
	if p.source == nil {
		return
	}

	p.mu.Lock()
	if p.inFlight || now.Sub(p.lastKick) < p.cfg.SampleInterval {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.lastKick = now
	gen := p.gen
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Warn("terrain sampler panicked", "panic", r)
			}
			p.mu.Lock()
			p.inFlight = false
			p.mu.Unlock()
		}()

		heights, err := p.source.SampleElevation(context.Background(), []core.GeodeticPosition{pos})
		if err != nil || len(heights) == 0 {
			p.logger.Debug("async terrain sample failed", "key", key, "error", err)
			return
		}
		p.pending.Push(pendingSample{
			key:    key,
			height: heights[0],
			at:     p.now(),
			gen:    gen,
		})
	}()
}

func (p *Provider) store(key string, h float64, at time.Time) {
	p.mu.Lock()
	p.cache[key] = sample{height: h, at: at}
	p.mu.Unlock()
}

func (p *Provider) warnOnce(msg string) {
	p.mu.Lock()
	warned := p.warned
	p.warned = true
	p.mu.Unlock()
	if !warned {
		p.logger.Warn(msg)
	}
}
