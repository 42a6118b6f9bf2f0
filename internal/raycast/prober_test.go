package raycast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citystride/grounding/internal/geomath"
	"github.com/citystride/grounding/internal/scene"
	"github.com/citystride/grounding/pkg/core"
)

type castCall struct {
	maxDistance float64
	scope       scene.QueryScope
}

type fakeHost struct {
	respond func(ray core.Ray, maxDistance float64, scope scene.QueryScope) ([]scene.Hit, error)
	calls   []castCall
}

func (f *fakeHost) CastRay(ray core.Ray, maxDistance float64, scope scene.QueryScope) ([]scene.Hit, error) {
	f.calls = append(f.calls, castCall{maxDistance: maxDistance, scope: scope})
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(ray, maxDistance, scope)
}

func pos(lonRad, latRad, height float64) core.GeodeticPosition {
	return core.GeodeticPosition{Longitude: lonRad, Latitude: latRad, Height: height}
}

// hitAt builds a hit directly below the given position at the given
// elevation.
func hitAt(p core.GeodeticPosition, elev float64) scene.Hit {
	return scene.Hit{Position: geomath.ECEF(core.GeodeticPosition{
		Longitude: p.Longitude,
		Latitude:  p.Latitude,
		Height:    elev,
	})}
}

func buildingsOnly(hits ...scene.Hit) func(core.Ray, float64, scene.QueryScope) ([]scene.Hit, error) {
	return func(_ core.Ray, _ float64, scope scene.QueryScope) ([]scene.Hit, error) {
		if scope == scene.ScopeBuildings {
			return hits, nil
		}
		return nil, nil
	}
}

func TestProbe_FirstCallCasts(t *testing.T) {
	p := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(p, 80))}
	prober := NewProber(host, DefaultConfig(), nil, nil)
	cache := &core.ProbeCache{}

	res := prober.Probe(p, core.MovementIntent{}, cache)

	assert.True(t, res.Hit)
	assert.InDelta(t, 80.0, res.Height, 0.05)
	assert.True(t, cache.Valid)
	require.Len(t, host.calls, 1)
}

func TestProbe_IdempotentWithoutMovement(t *testing.T) {
	p := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(p, 80))}
	prober := NewProber(host, DefaultConfig(), nil, nil)
	cache := &core.ProbeCache{}

	first := prober.Probe(p, core.MovementIntent{}, cache)
	second := prober.Probe(p, core.MovementIntent{}, cache)

	assert.Equal(t, first, second)
	assert.Len(t, host.calls, 1, "second probe must be served from cache")
}

func TestProbe_InvalidatedCacheForcesCast(t *testing.T) {
	p := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(p, 80))}
	prober := NewProber(host, DefaultConfig(), nil, nil)
	cache := &core.ProbeCache{}

	prober.Probe(p, core.MovementIntent{}, cache)
	cache.Invalidate()
	prober.Probe(p, core.MovementIntent{}, cache)

	assert.Len(t, host.calls, 2)
}

func TestProbe_ShortCircuitsNearGround(t *testing.T) {
	host := &fakeHost{}
	prober := NewProber(host, DefaultConfig(), nil, nil)
	cache := &core.ProbeCache{Valid: true, Hit: false}

	res := prober.Probe(pos(0, 0, 5), core.MovementIntent{Forward: true}, cache)

	assert.False(t, res.Hit)
	assert.Zero(t, res.Height)
	assert.Empty(t, host.calls, "near-ground probe must not touch geometry")
}

func TestProbe_NoShortCircuitWhileOnBuilding(t *testing.T) {
	p := pos(0, 0, 5)
	host := &fakeHost{respond: buildingsOnly(hitAt(p, 4))}
	prober := NewProber(host, DefaultConfig(), nil, nil)

	// Standing on a low roof: the cached hit keeps probing alive below the
	// threshold.
	cache := &core.ProbeCache{
		Valid: true, Hit: true, Height: 4,
		HasLast: true, LastLongitude: 0, LastLatitude: 0, LastHeight: 15,
	}

	prober.Probe(p, core.MovementIntent{}, cache)
	assert.NotEmpty(t, host.calls)
}

func TestProbe_HorizontalMovementGating(t *testing.T) {
	start := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(start, 80))}
	prober := NewProber(host, DefaultConfig(), nil, nil)
	cache := &core.ProbeCache{}

	prober.Probe(start, core.MovementIntent{}, cache)
	require.Len(t, host.calls, 1)

	threeMeters := 3.0 / geomath.EarthRadius
	oneMeter := 1.0 / geomath.EarthRadius

	// Small displacement with intent: cached verdict stands.
	prober.Probe(pos(oneMeter, 0, 150), core.MovementIntent{Forward: true}, cache)
	assert.Len(t, host.calls, 1)

	// Large displacement but no movement intent: cached verdict stands.
	prober.Probe(pos(threeMeters, 0, 150), core.MovementIntent{}, cache)
	assert.Len(t, host.calls, 1)

	// Large displacement while moving: re-cast.
	prober.Probe(pos(threeMeters, 0, 150), core.MovementIntent{Forward: true}, cache)
	assert.Len(t, host.calls, 2)
}

func TestProbe_VerticalDisplacementForcesCast(t *testing.T) {
	start := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(start, 80))}
	prober := NewProber(host, DefaultConfig(), nil, nil)
	cache := &core.ProbeCache{}

	prober.Probe(start, core.MovementIntent{}, cache)
	prober.Probe(pos(0, 0, 148), core.MovementIntent{}, cache)

	assert.Len(t, host.calls, 2)
}

func TestProbe_VerticalIntentForcesCast(t *testing.T) {
	start := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(start, 80))}
	prober := NewProber(host, DefaultConfig(), nil, nil)
	cache := &core.ProbeCache{}

	prober.Probe(start, core.MovementIntent{}, cache)
	prober.Probe(start, core.MovementIntent{Jump: true}, cache)

	assert.Len(t, host.calls, 2)
}

func TestProbe_SelectsNearestSurfaceBelow(t *testing.T) {
	p := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(p, 80), hitAt(p, 10), hitAt(p, 45))}
	prober := NewProber(host, DefaultConfig(), nil, nil)

	res := prober.Probe(p, core.MovementIntent{}, &core.ProbeCache{})

	assert.True(t, res.Hit)
	assert.InDelta(t, 80.0, res.Height, 0.05)
}

func TestProbe_DiscardsInvalidElevation(t *testing.T) {
	p := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(p, -3))}
	prober := NewProber(host, DefaultConfig(), nil, nil)
	cache := &core.ProbeCache{}

	res := prober.Probe(p, core.MovementIntent{}, cache)

	assert.False(t, res.Hit)
	assert.Zero(t, res.Height)
	assert.True(t, cache.Valid)
}

func TestProbe_DiscardsHitsAbovePlayer(t *testing.T) {
	p := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(p, 200))}
	prober := NewProber(host, DefaultConfig(), nil, nil)

	res := prober.Probe(p, core.MovementIntent{}, &core.ProbeCache{})
	assert.False(t, res.Hit)
}

func TestProbe_KeepsRoofLevelWithFeet(t *testing.T) {
	// Standing on the roof: a re-cast must keep reporting the surface the
	// player is standing on, not filter it as self-intersection.
	p := pos(0, 0, 80)
	host := &fakeHost{respond: buildingsOnly(hitAt(p, 80))}
	prober := NewProber(host, DefaultConfig(), nil, nil)

	res := prober.Probe(p, core.MovementIntent{}, &core.ProbeCache{})

	assert.True(t, res.Hit)
	assert.InDelta(t, 80.0, res.Height, 0.05)
}

func TestProbe_DiscardsSelfIntersection(t *testing.T) {
	p := pos(0, 0, 150)
	// A degenerate hit at the ray origin itself (1 m above the player).
	host := &fakeHost{respond: buildingsOnly(hitAt(p, 151))}
	prober := NewProber(host, DefaultConfig(), nil, nil)

	res := prober.Probe(p, core.MovementIntent{}, &core.ProbeCache{})
	assert.False(t, res.Hit)
}

func TestProbe_UnscopedRetry(t *testing.T) {
	p := pos(0, 0, 150)
	host := &fakeHost{respond: func(_ core.Ray, _ float64, scope scene.QueryScope) ([]scene.Hit, error) {
		if scope == scene.ScopeAll {
			return []scene.Hit{hitAt(p, 30)}, nil
		}
		return nil, nil
	}}
	prober := NewProber(host, DefaultConfig(), nil, nil)

	res := prober.Probe(p, core.MovementIntent{}, &core.ProbeCache{})

	assert.True(t, res.Hit)
	assert.InDelta(t, 30.0, res.Height, 0.05)
	require.Len(t, host.calls, 2)
	assert.Equal(t, scene.ScopeBuildings, host.calls[0].scope)
	assert.Equal(t, scene.ScopeAll, host.calls[1].scope)
}

func TestProbe_ExtendedRetryWhileDescending(t *testing.T) {
	p := pos(0, 0, 150)
	cfg := DefaultConfig()
	host := &fakeHost{respond: func(_ core.Ray, maxDistance float64, scope scene.QueryScope) ([]scene.Hit, error) {
		if scope == scene.ScopeAll && maxDistance > cfg.MaxDistance {
			return []scene.Hit{hitAt(p, 20)}, nil
		}
		return nil, nil
	}}
	prober := NewProber(host, cfg, nil, nil)

	res := prober.Probe(p, core.MovementIntent{Down: true}, &core.ProbeCache{})

	assert.True(t, res.Hit)
	require.Len(t, host.calls, 3)
	assert.InDelta(t, cfg.MaxDistance*cfg.ExtendedDistanceFactor, host.calls[2].maxDistance, 1e-9)
}

func TestProbe_NoExtendedRetryWithoutDescent(t *testing.T) {
	p := pos(0, 0, 150)
	host := &fakeHost{}
	prober := NewProber(host, DefaultConfig(), nil, nil)

	res := prober.Probe(p, core.MovementIntent{}, &core.ProbeCache{})

	assert.False(t, res.Hit)
	assert.Len(t, host.calls, 2)
}

func TestProbe_GeometryErrorDegradesToNoHit(t *testing.T) {
	p := pos(0, 0, 150)
	host := &fakeHost{respond: func(core.Ray, float64, scene.QueryScope) ([]scene.Hit, error) {
		return nil, errors.New("tileset still streaming")
	}}
	prober := NewProber(host, DefaultConfig(), nil, nil)
	cache := &core.ProbeCache{}

	res := prober.Probe(p, core.MovementIntent{}, cache)

	assert.False(t, res.Hit)
	assert.True(t, cache.Valid, "error must not leave the cache invalid")
}

func TestProbe_ScenarioBuildingUnderPlayer(t *testing.T) {
	// 150 m above a building whose roof is at 80 m, terrain at 10 m.
	p := pos(0, 0, 150)
	host := &fakeHost{respond: buildingsOnly(hitAt(p, 80), hitAt(p, 10))}
	cfg := DefaultConfig()
	cfg.HeightThreshold = 20
	cfg.MaxDistance = 150
	prober := NewProber(host, cfg, nil, nil)

	res := prober.Probe(p, core.MovementIntent{}, &core.ProbeCache{})

	assert.True(t, res.Hit)
	assert.InDelta(t, 80.0, res.Height, 0.05)
}
