package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/citystride/grounding/internal/engine"
	"github.com/citystride/grounding/internal/geomath"
	"github.com/citystride/grounding/internal/kinematics"
	"github.com/citystride/grounding/pkg/core"
)

const maxFrames = 5000

var frameDelta = 1.0 / 60.0

// simulate drives a scripted demo session: a dramatic entry fall from the
// spawn height down onto whatever surface the engine resolves, a short
// settling period, and one jump off the landing surface.
func simulate(eng *engine.Engine, spawn core.GeodeticPosition, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pos := spawn
	intent := core.MovementIntent{}

	eng.Teleport(ctx, &pos, true)

	frame := 0
	for ; frame < maxFrames; frame++ {
		v := eng.Step(&pos, &intent, frameDelta)

		if frame%30 == 0 {
			logger.Info("frame",
				"n", frame,
				"height", pos.Height,
				"verticalVelocity", v,
				"mode", eng.Mode().String(),
			)
		}

		if eng.Mode() == kinematics.ModeNormal && eng.Grounded(pos) {
			break
		}

		// Async terrain samples land between frames.
		time.Sleep(time.Duration(frameDelta * float64(time.Second)))
	}

	if frame >= maxFrames {
		logger.Warn("entry fall never settled", "height", pos.Height)
		return
	}

	logger.Info("landed",
		"frames", frame,
		"height", pos.Height,
		"longitudeDeg", geomath.RadToDeg(pos.Longitude),
		"latitudeDeg", geomath.RadToDeg(pos.Latitude),
	)

	// One jump off the landing surface, then let it settle again.
	intent.Jump = true
	peak := pos.Height
	for i := 0; i < 240; i++ {
		eng.Step(&pos, &intent, frameDelta)
		if pos.Height > peak {
			peak = pos.Height
		}
		if i > 10 && eng.Grounded(pos) {
			break
		}
	}

	logger.Info("jump complete",
		"peakHeight", peak,
		"restHeight", pos.Height,
		"grounded", eng.Grounded(pos),
	)
}
