// Package engine wires the building prober, terrain provider, surface
// resolver, and vertical integrator into the per-frame surface resolution
// and grounding loop exposed to the frame scheduler.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/citystride/grounding/internal/kinematics"
	"github.com/citystride/grounding/internal/raycast"
	"github.com/citystride/grounding/internal/surface"
	"github.com/citystride/grounding/internal/terrain"
	"github.com/citystride/grounding/pkg/core"
)

// Dependencies holds the collaborators the engine is built from.
type Dependencies struct {
	Terrain    *terrain.Provider
	Prober     *raycast.Prober
	Resolver   *surface.Resolver
	Integrator *kinematics.Integrator
	Logger     *slog.Logger
}

// Engine owns the probe cache and the grounding state for one entity. It is
// frame-driven and single-caller: the scheduler invokes Step once per
// rendered frame, and only async terrain samples run off the frame path.
type Engine struct {
	deps  Dependencies
	cache core.ProbeCache
	state kinematics.State

	now func() time.Time
}

// New creates an engine. The grounding state starts armed for a scripted
// entry fall, matching a fresh session that has not landed yet.
func New(deps Dependencies) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	e := &Engine{
		deps: deps,
		now:  time.Now,
	}
	e.state.Reset(true, e.now())
	return e
}

// ProbeBuilding returns the building-surface verdict beneath the position,
// reusing the cached verdict when the gating rules allow.
func (e *Engine) ProbeBuilding(pos core.GeodeticPosition, intent core.MovementIntent) core.ProbeResult {
	return e.deps.Prober.Probe(pos, intent, &e.cache)
}

// SurfaceHeight resolves the authoritative standable elevation at the
// position from the probe verdict and the terrain height.
func (e *Engine) SurfaceHeight(pos core.GeodeticPosition, probe core.ProbeResult) float64 {
	return e.deps.Resolver.SurfaceHeight(pos, probe)
}

// OnSurface reports whether an entity at the position with the given
// vertical velocity is grounded.
func (e *Engine) OnSurface(pos core.GeodeticPosition, verticalVelocity float64, probe core.ProbeResult) bool {
	return e.deps.Resolver.OnSurface(pos, verticalVelocity, probe)
}

// Step runs one frame: pending async terrain results are folded in, the
// building probe runs, the surface is resolved, and the vertical state is
// integrated. pos.Height is mutated in place; the new vertical velocity is
// returned. The internal ordering is a hard dependency, not a convenience.
func (e *Engine) Step(pos *core.GeodeticPosition, intent *core.MovementIntent, dt float64) float64 {
	e.deps.Terrain.ApplyPending()

	probe := e.deps.Prober.Probe(*pos, *intent, &e.cache)
	surfaceHeight := e.deps.Resolver.SurfaceHeight(*pos, probe)
	grounded := e.deps.Resolver.OnSurface(*pos, e.state.VerticalVelocity, probe)

	return e.deps.Integrator.Step(pos, &e.state, intent, surfaceHeight, grounded, dt)
}

// Teleport prepares the engine for a new location: both caches are
// cleared, the grounding state is re-armed (a dramatic entry restarts the
// scripted fall), and the terrain is force-sampled so the first frame has
// an authoritative ground height. A non-dramatic teleport that would bury
// the entity snaps it up to the sampled ground.
func (e *Engine) Teleport(ctx context.Context, pos *core.GeodeticPosition, dramatic bool) {
	e.deps.Terrain.Clear()
	e.cache.Invalidate()
	e.state.Reset(dramatic, e.now())

	ground := e.deps.Terrain.ForceSample(ctx, *pos)
	if !dramatic && pos.Height < ground {
		pos.Height = ground
	}

	e.deps.Logger.Info("teleport",
		"longitude", pos.Longitude,
		"latitude", pos.Latitude,
		"height", pos.Height,
		"ground", ground,
		"dramatic", dramatic,
	)
}

// Mode returns the current motion mode, for animation and camera cues.
func (e *Engine) Mode() kinematics.Mode {
	return e.state.Mode
}

// VerticalVelocity returns the current vertical velocity in m/s.
func (e *Engine) VerticalVelocity() float64 {
	return e.state.VerticalVelocity
}

// Grounded reports whether the entity is currently standing on the
// resolved surface, using the cached probe verdict.
func (e *Engine) Grounded(pos core.GeodeticPosition) bool {
	return e.deps.Resolver.OnSurface(pos, e.state.VerticalVelocity, e.cache.Result())
}
