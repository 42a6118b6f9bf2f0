// Package kinematics owns the vertical motion of the entity: gravity, jump
// impulses, landing and bounce detection, and the two top-level motion
// modes (scripted high-altitude entry fall vs. normal gameplay).
package kinematics

import (
	"log/slog"
	"math"
	"time"

	"github.com/citystride/grounding/pkg/core"
)

// Mode is the top-level motion mode.
type Mode int

const (
	// ModeScriptedFall is the non-player-controlled descent used when
	// entering a new location.
	ModeScriptedFall Mode = iota
	// ModeNormal is regular gravity/jump gameplay.
	ModeNormal
)

func (m Mode) String() string {
	switch m {
	case ModeScriptedFall:
		return "scripted-fall"
	case ModeNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// State is the vertical motion state. It is owned by the integrator's
// caller; the frame scheduler only reads VerticalVelocity and Mode for
// animation and camera cues.
type State struct {
	VerticalVelocity float64
	Mode             Mode
	// FallStart is when the current entry fall began. Only meaningful in
	// ModeScriptedFall.
	FallStart time.Time
}

// Reset re-arms the state for a new entry episode. With dramatic set the
// entity starts in a scripted fall; otherwise it starts in normal play.
func (s *State) Reset(dramatic bool, now time.Time) {
	s.VerticalVelocity = 0
	if dramatic {
		s.Mode = ModeScriptedFall
		s.FallStart = now
	} else {
		s.Mode = ModeNormal
		s.FallStart = time.Time{}
	}
}

// Config holds the integrator's tuning values. The fall multiplier and
// bounce coefficient are feel constants, not physics.
type Config struct {
	// Gravity in m/s^2, negative downward.
	Gravity float64
	// FallMultiplier amplifies gravity during the scripted entry fall.
	FallMultiplier float64
	// JumpImpulse is the upward velocity of a grounded jump, m/s.
	JumpImpulse float64
	// BounceCoefficient scales the residual velocity of a hard landing.
	BounceCoefficient float64
	// HardLandingSpeed is the downward speed beyond which a landing
	// bounces instead of stopping dead, m/s.
	HardLandingSpeed float64
	// MaxDelta caps the integration step so a stalled frame cannot
	// teleport the entity, seconds.
	MaxDelta float64
	// JumpLiftEpsilon nudges the entity off the surface on jump so it is
	// not re-grounded within the same frame, meters.
	JumpLiftEpsilon float64
}

// DefaultConfig returns the integrator defaults.
func DefaultConfig() Config {
	return Config{
		Gravity:           -9.81,
		FallMultiplier:    1.5,
		JumpImpulse:       8,
		BounceCoefficient: 0.2,
		HardLandingSpeed:  20,
		MaxDelta:          0.1,
		JumpLiftEpsilon:   0.05,
	}
}

// Integrator advances the vertical motion state one frame at a time.
type Integrator struct {
	cfg    Config
	logger *slog.Logger
}

// NewIntegrator creates an integrator. logger may be nil.
func NewIntegrator(cfg Config, logger *slog.Logger) *Integrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Integrator{cfg: cfg, logger: logger}
}

// Step advances one frame: applies gravity (amplified during the scripted
// fall) and jump impulses, integrates the height in place, clamps against
// the surface with landing/bounce handling, and fires the one-way
// ScriptedFall-to-Normal transition. Returns the new vertical velocity.
//
// surfaceHeight and onSurface must come from the surface resolver for this
// same frame, after the building probe ran; the ordering is load-bearing.
// A grounded jump consumes intent.Jump.
func (k *Integrator) Step(pos *core.GeodeticPosition, st *State, intent *core.MovementIntent, surfaceHeight float64, onSurface bool, dt float64) float64 {
	if dt <= 0 {
		return st.VerticalVelocity
	}
	if dt > k.cfg.MaxDelta {
		dt = k.cfg.MaxDelta
	}

	wasScripted := st.Mode == ModeScriptedFall

	switch st.Mode {
	case ModeScriptedFall:
		// Jump input is ignored until the entry fall completes.
		st.VerticalVelocity += k.cfg.Gravity * dt * k.cfg.FallMultiplier
	case ModeNormal:
		if intent.Jump && onSurface {
			st.VerticalVelocity = k.cfg.JumpImpulse
			pos.Height += k.cfg.JumpLiftEpsilon
			intent.Jump = false
		}
		st.VerticalVelocity += k.cfg.Gravity * dt
	}

	pos.Height += st.VerticalVelocity * dt

	if pos.Height < surfaceHeight {
		impact := st.VerticalVelocity
		pos.Height = surfaceHeight
		if -impact >= k.cfg.HardLandingSpeed || wasScripted {
			// Damped bounce with a residual downward bias so the entity
			// settles quickly instead of oscillating.
			st.VerticalVelocity = -math.Abs(impact) * k.cfg.BounceCoefficient
		} else {
			st.VerticalVelocity = 0
		}
	}

	if wasScripted {
		if onSurface || pos.Height <= surfaceHeight || pos.Height <= 0 {
			st.Mode = ModeNormal
			k.logger.Info("entry fall complete",
				"height", pos.Height,
				"duration", time.Since(st.FallStart).Round(time.Millisecond),
			)
		}
	}

	return st.VerticalVelocity
}
