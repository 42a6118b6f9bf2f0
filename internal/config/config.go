package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Load reads configuration from a JSON file and sets default values for
// every tuning constant of the grounding engine. configDir is the directory
// containing the config file. A missing file is not an error; defaults
// apply.
func Load(configDir string) error {
	// Logging defaults
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./groundlogs")

	// OTel defaults
	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "grounding-engine")
	viper.SetDefault("otel.batchTimeoutSeconds", 5)

	// Terrain height provider
	viper.SetDefault("terrain.defaultHeight", 0.0)
	viper.SetDefault("terrain.cacheTTLSeconds", 30)
	viper.SetDefault("terrain.sampleIntervalMs", 200)

	// Building probe
	viper.SetDefault("probe.heightThreshold", 20.0)
	viper.SetDefault("probe.maxDistance", 150.0)
	viper.SetDefault("probe.minMovementDistance", 2.0)
	viper.SetDefault("probe.minVerticalDistance", 1.0)
	viper.SetDefault("probe.heightOffset", 1.0)
	viper.SetDefault("probe.extendedDistanceFactor", 1.5)

	// Vertical kinematics. Bounce and fall multipliers are tuning values,
	// not physical constants; they are deliberately configurable.
	viper.SetDefault("physics.gravity", -9.81)
	viper.SetDefault("physics.fallMultiplier", 1.5)
	viper.SetDefault("physics.jumpImpulse", 8.0)
	viper.SetDefault("physics.bounceCoefficient", 0.2)
	viper.SetDefault("physics.hardLandingSpeed", 20.0)
	viper.SetDefault("physics.maxFrameDelta", 0.1)
	viper.SetDefault("physics.jumpLiftEpsilon", 0.05)

	viper.SetConfigName("groundsim.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat64 returns a float64 config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}
