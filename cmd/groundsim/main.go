package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/citystride/grounding/internal/config"
	"github.com/citystride/grounding/internal/engine"
	"github.com/citystride/grounding/internal/geomath"
	"github.com/citystride/grounding/internal/kinematics"
	"github.com/citystride/grounding/internal/logging"
	intotel "github.com/citystride/grounding/internal/otel"
	"github.com/citystride/grounding/internal/raycast"
	"github.com/citystride/grounding/internal/scene"
	"github.com/citystride/grounding/internal/surface"
	"github.com/citystride/grounding/internal/terrain"
	"github.com/citystride/grounding/pkg/core"
)

// Version can be overridden at build time via ldflags.
var Version = "0.1.0"

func main() {
	configDir := flag.String("config", ".", "directory containing groundsim.cfg.json")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, "groundsim:", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	if err := config.Load(configDir); err != nil {
		return err
	}

	sessionStart := time.Now()
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	var fileWriter io.Writer
	logFile, err := os.Create(logging.LogFilePath(logsDir, sessionStart))
	if err == nil {
		defer logFile.Close()
		fileWriter = logFile
	}

	otelProvider, otelCleanup, err := setupOTel(logsDir, sessionStart)
	if err != nil {
		return err
	}
	defer otelCleanup()

	logManager := logging.NewManager()
	logManager.Setup(fileWriter, config.GetString("logLevel"), otelProvider.LoggerProvider())
	logger := logManager.Logger()
	logger.Info("groundsim starting", "version", Version)

	city, spawn, err := buildCity()
	if err != nil {
		return err
	}

	terrainProvider := terrain.NewProvider(city, terrain.Config{
		DefaultHeight:  config.GetFloat64("terrain.defaultHeight"),
		CacheTTL:       time.Duration(config.GetInt("terrain.cacheTTLSeconds")) * time.Second,
		SampleInterval: time.Duration(config.GetInt("terrain.sampleIntervalMs")) * time.Millisecond,
	}, logger)

	eng := engine.New(engine.Dependencies{
		Terrain: terrainProvider,
		Prober: raycast.NewProber(city, raycast.Config{
			HeightThreshold:        config.GetFloat64("probe.heightThreshold"),
			MaxDistance:            config.GetFloat64("probe.maxDistance"),
			MinMovementDistance:    config.GetFloat64("probe.minMovementDistance"),
			MinVerticalDistance:    config.GetFloat64("probe.minVerticalDistance"),
			HeightOffset:           config.GetFloat64("probe.heightOffset"),
			ExtendedDistanceFactor: config.GetFloat64("probe.extendedDistanceFactor"),
			SelfHitEpsilon:         0.01,
			BelowEpsilon:           0.01,
		}, logger, otelProvider.Meter("groundsim")),
		Resolver: surface.NewResolver(terrainProvider, surface.DefaultTolerance),
		Integrator: kinematics.NewIntegrator(kinematics.Config{
			Gravity:           config.GetFloat64("physics.gravity"),
			FallMultiplier:    config.GetFloat64("physics.fallMultiplier"),
			JumpImpulse:       config.GetFloat64("physics.jumpImpulse"),
			BounceCoefficient: config.GetFloat64("physics.bounceCoefficient"),
			HardLandingSpeed:  config.GetFloat64("physics.hardLandingSpeed"),
			MaxDelta:          config.GetFloat64("physics.maxFrameDelta"),
			JumpLiftEpsilon:   config.GetFloat64("physics.jumpLiftEpsilon"),
		}, logger),
		Logger: logger,
	})

	simulate(eng, spawn, logger)

	if err := logManager.Flush(context.Background()); err != nil {
		logger.Warn("log flush failed", "error", err)
	}
	return nil
}

func setupOTel(logsDir string, sessionStart time.Time) (*intotel.Provider, func(), error) {
	cfg := intotel.Config{
		Enabled:      config.GetBool("otel.enabled"),
		ServiceName:  config.GetString("otel.serviceName"),
		BatchTimeout: time.Duration(config.GetInt("otel.batchTimeoutSeconds")) * time.Second,
	}

	var otelFile *os.File
	if cfg.Enabled {
		var err error
		otelFile, err = os.Create(logging.LogFilePath(logsDir, sessionStart) + ".otel.json")
		if err != nil {
			return nil, nil, fmt.Errorf("creating otel log file: %w", err)
		}
		cfg.LogWriter = otelFile
	}

	provider, err := intotel.New(cfg)
	if err != nil {
		if otelFile != nil {
			otelFile.Close()
		}
		return nil, nil, fmt.Errorf("otel setup: %w", err)
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
		if otelFile != nil {
			otelFile.Close()
		}
	}
	return provider, cleanup, nil
}

// buildCity assembles a small synthetic downtown and returns the spawn
// point directly above the tallest roof.
func buildCity() (*scene.City, core.GeodeticPosition, error) {
	city := scene.NewCity(scene.CityOptions{
		TerrainSeed:      42,
		TerrainBase:      12,
		TerrainAmplitude: 6,
		// No synchronous elevation fast path: the provider has to work
		// through its async sampling route like against a streaming host.
		DirectElevation: false,
		SampleLatency:   30 * time.Millisecond,
	})

	buildings := []struct {
		name string
		wkt  string
		roof float64
	}{
		{"north tower", "POLYGON((139.7449 35.6581,139.7459 35.6581,139.7459 35.6591,139.7449 35.6591,139.7449 35.6581))", 95},
		{"plaza block", "POLYGON((139.7460 35.6581,139.7470 35.6581,139.7470 35.6591,139.7460 35.6591,139.7460 35.6581))", 40},
		{"annex", "POLYGON((139.7449 35.6570,139.7459 35.6570,139.7459 35.6580,139.7449 35.6580,139.7449 35.6570))", 28},
	}
	for _, b := range buildings {
		if err := city.AddBuilding(b.name, b.wkt, b.roof); err != nil {
			return nil, core.GeodeticPosition{}, err
		}
	}

	spawn := core.GeodeticPosition{
		Longitude: geomath.DegToRad(139.7454),
		Latitude:  geomath.DegToRad(35.6586),
		Height:    400,
	}
	return city, spawn, nil
}
