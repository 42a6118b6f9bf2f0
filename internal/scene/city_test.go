package scene

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citystride/grounding/internal/geomath"
	"github.com/citystride/grounding/pkg/core"
)

const towerWKT = "POLYGON((-0.001 -0.001,0.001 -0.001,0.001 0.001,-0.001 0.001,-0.001 -0.001))"

func newTestCity(t *testing.T) *City {
	t.Helper()
	city := NewCity(CityOptions{
		TerrainSeed:      7,
		TerrainBase:      10,
		TerrainAmplitude: 5,
		DirectElevation:  true,
	})
	require.NoError(t, city.AddBuilding("tower", towerWKT, 80))
	return city
}

func TestCity_AddBuilding_RejectsNonPolygon(t *testing.T) {
	city := NewCity(CityOptions{})
	err := city.AddBuilding("bad", "POINT(1 2)", 10)
	assert.Error(t, err)
}

func TestCity_AddBuilding_RejectsBadWKT(t *testing.T) {
	city := NewCity(CityOptions{})
	err := city.AddBuilding("bad", "POLYGON((", 10)
	assert.Error(t, err)
}

func TestCity_CastRay_HitsRoofBelowOrigin(t *testing.T) {
	city := newTestCity(t)

	pos := core.GeodeticPosition{Longitude: 0, Latitude: 0, Height: 150}
	ray := geomath.LocalDownRay(pos, 1)

	hits, err := city.CastRay(ray, 200, ScopeBuildings)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 80.0, geomath.ElevationOf(hits[0].Position), 0.05)
}

func TestCity_CastRay_MissesOutsideFootprint(t *testing.T) {
	city := newTestCity(t)

	pos := core.GeodeticPosition{Longitude: geomath.DegToRad(0.01), Latitude: 0, Height: 150}
	ray := geomath.LocalDownRay(pos, 1)

	hits, err := city.CastRay(ray, 200, ScopeBuildings)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCity_CastRay_MissesWhenOriginBelowRoof(t *testing.T) {
	city := newTestCity(t)

	pos := core.GeodeticPosition{Longitude: 0, Latitude: 0, Height: 40}
	ray := geomath.LocalDownRay(pos, 1)

	hits, err := city.CastRay(ray, 200, ScopeBuildings)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCity_CastRay_RespectsMaxDistance(t *testing.T) {
	city := newTestCity(t)

	pos := core.GeodeticPosition{Longitude: 0, Latitude: 0, Height: 500}
	ray := geomath.LocalDownRay(pos, 1)

	hits, err := city.CastRay(ray, 100, ScopeBuildings)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCity_CastRay_ScopeAllIncludesTerrain(t *testing.T) {
	city := newTestCity(t)

	// Outside the footprint: the building layer is empty but the terrain
	// surface still intersects the extended query.
	pos := core.GeodeticPosition{Longitude: geomath.DegToRad(0.01), Latitude: 0, Height: 150}
	ray := geomath.LocalDownRay(pos, 1)

	hits, err := city.CastRay(ray, 200, ScopeAll)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	want, ok := city.ElevationAt(pos.Longitude, pos.Latitude)
	require.True(t, ok)
	assert.InDelta(t, want, geomath.ElevationOf(hits[0].Position), 0.05)
}

func TestCity_ElevationAt_DisabledFastPath(t *testing.T) {
	city := NewCity(CityOptions{DirectElevation: false})
	_, ok := city.ElevationAt(0, 0)
	assert.False(t, ok)
}

func TestCity_SampleElevation(t *testing.T) {
	city := newTestCity(t)

	pts := []core.GeodeticPosition{{Longitude: 0, Latitude: 0}}
	heights, err := city.SampleElevation(t.Context(), pts)
	require.NoError(t, err)
	require.Len(t, heights, 1)

	direct, ok := city.ElevationAt(0, 0)
	require.True(t, ok)
	assert.Equal(t, direct, heights[0])
}

func TestCity_SampleElevation_Failure(t *testing.T) {
	city := newTestCity(t)
	city.SetSamplingFailure(true)

	_, err := city.SampleElevation(t.Context(), []core.GeodeticPosition{{}})
	assert.Error(t, err)

	city.SetSamplingFailure(false)
	_, err = city.SampleElevation(t.Context(), []core.GeodeticPosition{{}})
	assert.NoError(t, err)
}

func TestCity_SampleElevation_ContextCancelled(t *testing.T) {
	city := NewCity(CityOptions{SampleLatency: time.Second})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := city.SampleElevation(ctx, []core.GeodeticPosition{{}})
	assert.Error(t, err)
}
