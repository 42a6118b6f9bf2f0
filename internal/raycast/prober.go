// Package raycast decides when a physical ray cast against building
// geometry is warranted and resolves the nearest valid surface below the
// player, caching the verdict between casts.
package raycast

import (
	"context"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/citystride/grounding/internal/geomath"
	"github.com/citystride/grounding/internal/scene"
	"github.com/citystride/grounding/pkg/core"
)

// Config holds the prober's gating and geometry tuning values.
type Config struct {
	// HeightThreshold short-circuits probing near ground level unless the
	// player was already standing on a building.
	HeightThreshold float64
	// MaxDistance bounds the ray query.
	MaxDistance float64
	// MinMovementDistance is the horizontal displacement that invalidates
	// the cached verdict while movement keys are held.
	MinMovementDistance float64
	// MinVerticalDistance is the vertical displacement that invalidates
	// the cached verdict.
	MinVerticalDistance float64
	// HeightOffset anchors the down ray this far above the player.
	HeightOffset float64
	// ExtendedDistanceFactor lengthens the last-chance retry while the
	// player is descending.
	ExtendedDistanceFactor float64
	// SelfHitEpsilon rejects hits within this distance of the ray origin.
	SelfHitEpsilon float64
	// BelowEpsilon requires hits to sit at least this far below the ray
	// origin, so the anchor offset itself can never be mistaken for a
	// surface. A hit level with the player's feet is still valid.
	BelowEpsilon float64
}

// DefaultConfig returns the prober defaults.
func DefaultConfig() Config {
	return Config{
		HeightThreshold:        20,
		MaxDistance:            150,
		MinMovementDistance:    2,
		MinVerticalDistance:    1,
		HeightOffset:           geomath.DefaultHeightOffset,
		ExtendedDistanceFactor: 1.5,
		SelfHitEpsilon:         0.01,
		BelowEpsilon:           0.01,
	}
}

// Prober casts rays against building geometry with movement- and
// state-gated re-cast avoidance.
type Prober struct {
	host   scene.RayIntersector
	cfg    Config
	logger *slog.Logger

	castsPerformed  metric.Int64Counter
	cacheHits       metric.Int64Counter
	invalidFiltered metric.Int64Counter

	warnedGeometry bool
}

// NewProber creates a prober over the host's ray query. meter may be nil.
func NewProber(host scene.RayIntersector, cfg Config, logger *slog.Logger, meter metric.Meter) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if meter == nil {
		meter = noop.Meter{}
	}
	p := &Prober{
		host:   host,
		cfg:    cfg,
		logger: logger,
	}
	p.castsPerformed, _ = meter.Int64Counter("grounding.probe.casts",
		metric.WithDescription("physical ray casts performed"))
	p.cacheHits, _ = meter.Int64Counter("grounding.probe.cache_hits",
		metric.WithDescription("probes served from the cached verdict"))
	p.invalidFiltered, _ = meter.Int64Counter("grounding.probe.invalid_heights",
		metric.WithDescription("intersection candidates discarded for non-positive elevation"))
	return p
}

// Probe returns the current building-surface verdict for the position,
// performing a physical cast only when the cache can no longer answer.
// The cache is owned by the caller and updated in place.
func (p *Prober) Probe(pos core.GeodeticPosition, intent core.MovementIntent, cache *core.ProbeCache) core.ProbeResult {
	if !p.shouldCast(pos, intent, cache) {
		p.cacheHits.Add(context.Background(), 1)
		return cache.Result()
	}

	hit, height := p.cast(pos, intent)

	cache.Valid = true
	cache.Hit = hit
	cache.Height = height
	cache.HasLast = true
	cache.LastLongitude = pos.Longitude
	cache.LastLatitude = pos.Latitude
	cache.LastHeight = pos.Height

	return cache.Result()
}

func (p *Prober) shouldCast(pos core.GeodeticPosition, intent core.MovementIntent, cache *core.ProbeCache) bool {
	if !cache.Valid {
		return true
	}

	// Near ground level and not standing on a building: nothing below the
	// threshold can be a roof worth probing for.
	if pos.Height < p.cfg.HeightThreshold && !cache.Hit {
		return false
	}

	// A fast vertical traverse can cross a roof between casts.
	if intent.VerticalActive() {
		return true
	}

	if !cache.HasLast {
		return true
	}

	if math.Abs(pos.Height-cache.LastHeight) > p.cfg.MinVerticalDistance {
		return true
	}

	if intent.HorizontalActive() {
		moved := geomath.HorizontalDistance(
			cache.LastLongitude, cache.LastLatitude,
			pos.Longitude, pos.Latitude,
		)
		if moved > p.cfg.MinMovementDistance {
			return true
		}
	}

	return false
}

// cast performs the physical ray query: the building layer first, then an
// unscoped retry, then one extended retry while descending. Geometry errors
// degrade to "no hit".
func (p *Prober) cast(pos core.GeodeticPosition, intent core.MovementIntent) (bool, float64) {
	p.castsPerformed.Add(context.Background(), 1)

	ray := geomath.LocalDownRay(pos, p.cfg.HeightOffset)

	hits := p.query(ray, p.cfg.MaxDistance, scene.ScopeBuildings)
	if len(hits) == 0 {
		hits = p.query(ray, p.cfg.MaxDistance, scene.ScopeAll)
	}
	if len(hits) == 0 && intent.Down {
		hits = p.query(ray, p.cfg.MaxDistance*p.cfg.ExtendedDistanceFactor, scene.ScopeAll)
	}

	return p.selectCandidate(ray, pos, hits)
}

func (p *Prober) query(ray core.Ray, maxDistance float64, scope scene.QueryScope) []scene.Hit {
	hits, err := p.host.CastRay(ray, maxDistance, scope)
	if err != nil {
		if !p.warnedGeometry {
			p.warnedGeometry = true
			p.logger.Warn("building geometry query failed, treating as no hit", "error", err)
		}
		return nil
	}
	return hits
}

// selectCandidate filters degenerate and invalid hits and picks the one
// closest to the ray origin, i.e. the highest surface below the player.
func (p *Prober) selectCandidate(ray core.Ray, pos core.GeodeticPosition, hits []scene.Hit) (bool, float64) {
	bestDist := math.MaxFloat64
	bestHeight := 0.0
	found := false
	invalid := 0

	for _, h := range hits {
		elev := geomath.ElevationOf(h.Position)

		// Non-positive elevation is a known upstream data artifact.
		if elev <= 0 {
			invalid++
			continue
		}

		dist := ray.Origin.Sub(h.Position).Len()
		if dist <= p.cfg.SelfHitEpsilon {
			continue
		}
		if elev >= pos.Height+p.cfg.HeightOffset-p.cfg.BelowEpsilon {
			continue
		}

		if dist < bestDist {
			bestDist = dist
			bestHeight = elev
			found = true
		}
	}

	if invalid > 0 {
		p.invalidFiltered.Add(context.Background(), int64(invalid))
		p.logger.Debug("filtered invalid building heights", "count", invalid)
	}

	if !found {
		return false, 0
	}
	return true, bestHeight
}
