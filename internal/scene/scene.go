// Package scene defines the boundary contracts the grounding engine
// consumes from the geometry/terrain host, plus a synthetic in-memory city
// used by the demo binary and tests.
package scene

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/citystride/grounding/pkg/core"
)

// QueryScope selects which geometry a ray cast is tested against.
type QueryScope int

const (
	// ScopeBuildings restricts the cast to the known building layer.
	ScopeBuildings QueryScope = iota
	// ScopeAll tests against everything the host has loaded.
	ScopeAll
)

// Hit is one ray intersection. Position is in the geocentric frame.
// Order of returned hits is unspecified.
type Hit struct {
	Position mgl64.Vec3
}

// RayIntersector is the host's ray-intersection query. Implementations may
// return zero, one, or many hits, and may fail while geometry is still
// streaming in.
type RayIntersector interface {
	CastRay(ray core.Ray, maxDistance float64, scope QueryScope) ([]Hit, error)
}

// ElevationSource resolves terrain elevation for geodetic points.
//
// ElevationAt is the synchronous fast path against in-memory terrain; the
// boolean reports whether a usable value was available. SampleElevation is
// the authoritative, possibly slow query.
type ElevationSource interface {
	ElevationAt(lonRad, latRad float64) (float64, bool)
	SampleElevation(ctx context.Context, points []core.GeodeticPosition) ([]float64, error)
}
