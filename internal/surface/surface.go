// Package surface merges the building-probe verdict and the terrain height
// into the single authoritative standable elevation.
package surface

import (
	"math"

	"github.com/citystride/grounding/internal/terrain"
	"github.com/citystride/grounding/pkg/core"
)

// DefaultTolerance is how close to the surface an entity must be to count
// as grounded.
const DefaultTolerance = 0.5

// Resolver answers "what height can the entity stand on" and "is it
// standing there right now".
type Resolver struct {
	terrain   *terrain.Provider
	tolerance float64
}

// NewResolver creates a resolver over the terrain provider. A non-positive
// tolerance falls back to DefaultTolerance.
func NewResolver(t *terrain.Provider, tolerance float64) *Resolver {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Resolver{terrain: t, tolerance: tolerance}
}

// SurfaceHeight returns the authoritative standable elevation at the
// position: the building hit if it stands above the terrain, else the
// terrain itself. A building can sit on terrain of varying elevation, so a
// stale lower roof must never win over higher ground, and valid roofs must
// never be swallowed by the terrain below them.
func (r *Resolver) SurfaceHeight(pos core.GeodeticPosition, probe core.ProbeResult) float64 {
	h := r.terrain.Height(pos)
	if probe.Hit && probe.Height > h {
		return probe.Height
	}
	return h
}

// OnSurface reports whether the entity is grounded: within tolerance of the
// surface height and not on the way up through it.
func (r *Resolver) OnSurface(pos core.GeodeticPosition, verticalVelocity float64, probe core.ProbeResult) bool {
	if verticalVelocity > 0 {
		return false
	}
	return math.Abs(pos.Height-r.SurfaceHeight(pos, probe)) < r.tolerance
}
