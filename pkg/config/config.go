// Package config manages engine configuration using Viper, following the
// same shape the teacher's Louvain/SCAR configs use: a struct wrapping
// *viper.Viper, grouped defaults, typed getters, and a zerolog logger
// builder.
package config

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config manages engine configuration using Viper.
type Config struct {
	v *viper.Viper
}

// New creates a new configuration with defaults.
func New() *Config {
	v := viper.New()

	// Dataset parameters
	v.SetDefault("dataset.file", "")
	v.SetDefault("dataset.name", "")

	// Algorithm parameters
	v.SetDefault("algorithm.jnsq_bit_reversal", true)

	// Performance parameters
	v.SetDefault("performance.words_per_cycle", 8)

	// Distributed parameters
	v.SetDefault("distributed.ranks", 1)
	v.SetDefault("distributed.ranks_per_node", 1)

	// Logging parameters
	v.SetDefault("logging.level", "info")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file, overlaying the defaults
// above.
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Getters for dataset parameters.
func (c *Config) DatasetFile() string { return c.v.GetString("dataset.file") }
func (c *Config) DatasetName() string { return c.v.GetString("dataset.name") }

// Getters for algorithm parameters.
func (c *Config) JNSQBitReversal() bool { return c.v.GetBool("algorithm.jnsq_bit_reversal") }

// Getters for performance parameters.
func (c *Config) WordsPerCycle() int { return c.v.GetInt("performance.words_per_cycle") }

// Getters for distributed parameters.
func (c *Config) Ranks() int        { return c.v.GetInt("distributed.ranks") }
func (c *Config) RanksPerNode() int { return c.v.GetInt("distributed.ranks_per_node") }

// LogLevel returns the configured zerolog level name.
func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }

// Set allows dynamic configuration changes, e.g. from CLI flags.
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// CreateLogger builds a zerolog.Logger from the configured level.
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "laid").Logger()
}
