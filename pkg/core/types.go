package core

import "github.com/go-gl/mathgl/mgl64"

// GeodeticPosition is a longitude/latitude/height triple referenced to the
// WGS84 ellipsoid. Longitude and latitude are in radians, height in meters
// above the ellipsoid. The frame scheduler owns the value and the grounding
// engine mutates Height in place once per frame.
type GeodeticPosition struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Height    float64 `json:"height"`
}

// MovementIntent carries the input flags for the current frame. It is
// produced by input handling outside this module; only Jump is ever written
// back (a grounded jump consumes it).
type MovementIntent struct {
	Forward     bool `json:"forward"`
	Backward    bool `json:"backward"`
	StrafeLeft  bool `json:"strafeLeft"`
	StrafeRight bool `json:"strafeRight"`
	Up          bool `json:"up"`
	Down        bool `json:"down"`
	Jump        bool `json:"jump"`
}

// HorizontalActive reports whether any horizontal movement key is held.
func (m MovementIntent) HorizontalActive() bool {
	return m.Forward || m.Backward || m.StrafeLeft || m.StrafeRight
}

// VerticalActive reports whether any vertical movement key is held,
// including a pending jump.
func (m MovementIntent) VerticalActive() bool {
	return m.Up || m.Down || m.Jump
}

// ProbeResult is the verdict of one building probe. Height is only
// meaningful when Hit is true; a miss conventionally carries height 0.
type ProbeResult struct {
	Hit    bool    `json:"hit"`
	Height float64 `json:"height"`
}

// ProbeCache holds the last building-probe verdict together with the
// position it was taken at, so the prober can skip physical ray casts while
// the player hasn't moved far enough to change the answer.
//
// Valid == false forces the next probe to perform a physical cast
// regardless of movement deltas. HasLast guards the Last* fields: they are
// meaningless until the first cast has been recorded.
type ProbeCache struct {
	Valid  bool    `json:"valid"`
	Hit    bool    `json:"hit"`
	Height float64 `json:"height"`

	HasLast       bool    `json:"hasLast"`
	LastLongitude float64 `json:"lastLongitude"`
	LastLatitude  float64 `json:"lastLatitude"`
	LastHeight    float64 `json:"lastHeight"`
}

// Invalidate resets the cache so the next probe performs a physical cast.
func (c *ProbeCache) Invalidate() {
	*c = ProbeCache{}
}

// Result returns the cached verdict as a ProbeResult.
func (c *ProbeCache) Result() ProbeResult {
	return ProbeResult{Hit: c.Hit, Height: c.Height}
}

// Ray is a half-line in the geocentric (ECEF) frame. Direction is unit
// length.
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}
