package scene

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/citystride/grounding/internal/geomath"
	"github.com/citystride/grounding/pkg/core"
)

// Building is one extruded footprint of the synthetic city. The footprint
// polygon is in lon/lat degrees; RoofHeight is meters above the ellipsoid.
type Building struct {
	Name       string
	Footprint  geom.Geometry
	RoofHeight float64
}

// CityOptions configures the synthetic city host.
type CityOptions struct {
	// TerrainSeed seeds the perlin noise field used for ground elevation.
	TerrainSeed int64
	// TerrainBase is the mean terrain height in meters.
	TerrainBase float64
	// TerrainAmplitude scales the noise contribution in meters.
	TerrainAmplitude float64
	// DirectElevation exposes the synchronous elevation fast path. When
	// false the provider is forced onto its async sampling route, as with
	// a host that streams terrain tiles in lazily.
	DirectElevation bool
	// SampleLatency delays SampleElevation to simulate a slow backend.
	SampleLatency time.Duration
}

// City is an in-memory stand-in for the tiled-geometry host: extruded
// building footprints over a perlin-noise terrain field. It implements both
// RayIntersector and ElevationSource.
type City struct {
	opts      CityOptions
	noise     *perlin.Perlin
	buildings []Building

	mu           sync.Mutex
	failSampling bool
}

// NewCity creates an empty city over a noise terrain field.
func NewCity(opts CityOptions) *City {
	return &City{
		opts:  opts,
		noise: perlin.NewPerlin(2, 2, 3, opts.TerrainSeed),
	}
}

// AddBuilding registers a building from a WKT polygon footprint in lon/lat
// degrees.
func (c *City) AddBuilding(name, footprintWKT string, roofHeight float64) error {
	g, err := geom.UnmarshalWKT(footprintWKT)
	if err != nil {
		return fmt.Errorf("building %s: %w", name, err)
	}
	if g.Type() != geom.TypePolygon {
		return fmt.Errorf("building %s: footprint must be a polygon, got %s", name, g.Type())
	}
	c.buildings = append(c.buildings, Building{
		Name:       name,
		Footprint:  g,
		RoofHeight: roofHeight,
	})
	return nil
}

// Buildings returns the registered buildings.
func (c *City) Buildings() []Building {
	return c.buildings
}

// SetSamplingFailure makes SampleElevation fail until cleared. Used to
// exercise the provider's degradation paths.
func (c *City) SetSamplingFailure(fail bool) {
	c.mu.Lock()
	c.failSampling = fail
	c.mu.Unlock()
}

func (c *City) terrainAt(lonRad, latRad float64) float64 {
	// Noise sampled at a scale where elevation varies over a few hundred
	// meters of ground distance.
	lonDeg := lonRad * 180 / math.Pi
	latDeg := latRad * 180 / math.Pi
	n := c.noise.Noise2D(lonDeg*300, latDeg*300)
	return c.opts.TerrainBase + n*c.opts.TerrainAmplitude
}

// ElevationAt implements ElevationSource.
func (c *City) ElevationAt(lonRad, latRad float64) (float64, bool) {
	if !c.opts.DirectElevation {
		return 0, false
	}
	return c.terrainAt(lonRad, latRad), true
}

// SampleElevation implements ElevationSource.
func (c *City) SampleElevation(ctx context.Context, points []core.GeodeticPosition) ([]float64, error) {
	c.mu.Lock()
	fail := c.failSampling
	c.mu.Unlock()
	if fail {
		return nil, errors.New("elevation sampler offline")
	}

	if c.opts.SampleLatency > 0 {
		select {
		case <-time.After(c.opts.SampleLatency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	heights := make([]float64, len(points))
	for i, p := range points {
		heights[i] = c.terrainAt(p.Longitude, p.Latitude)
	}
	return heights, nil
}

// CastRay implements RayIntersector. Only downward rays are supported: the
// cast point is the geodetic foot of the ray origin, and every covering
// footprint whose roof lies below the origin and within maxDistance yields
// a hit. In ScopeAll the terrain surface itself is also a candidate.
func (c *City) CastRay(ray core.Ray, maxDistance float64, scope QueryScope) ([]Hit, error) {
	foot := geomath.Geodetic(ray.Origin)
	pt := geom.NewPoint(geom.Coordinates{
		XY: geom.XY{
			X: foot.Longitude * 180 / math.Pi,
			Y: foot.Latitude * 180 / math.Pi,
		},
		Type: geom.DimXY,
	})

	var hits []Hit
	for _, b := range c.buildings {
		if !geom.Intersects(b.Footprint, pt.AsGeometry()) {
			continue
		}
		dist := foot.Height - b.RoofHeight
		if dist < 0 || dist > maxDistance {
			continue
		}
		hits = append(hits, Hit{Position: geomath.ECEF(core.GeodeticPosition{
			Longitude: foot.Longitude,
			Latitude:  foot.Latitude,
			Height:    b.RoofHeight,
		})})
	}

	if scope == ScopeAll {
		ground := c.terrainAt(foot.Longitude, foot.Latitude)
		if dist := foot.Height - ground; dist >= 0 && dist <= maxDistance {
			hits = append(hits, Hit{Position: geomath.ECEF(core.GeodeticPosition{
				Longitude: foot.Longitude,
				Latitude:  foot.Latitude,
				Height:    ground,
			})})
		}
	}

	return hits, nil
}
