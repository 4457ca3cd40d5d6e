// File: internal/guidance/config.go
package guidance

import (
	"fmt"
	"math/rand"
)

// testModeCap limits the prescription while running user studies.
const testModeCap = 16

// AnnealConfig tunes the refinement search.
type AnnealConfig struct {
	StartTemperature float64 `mapstructure:"start_temperature" yaml:"start_temperature"`
	Step             float64 `mapstructure:"step" yaml:"step"`
	// Acceptance names the AcceptancePolicy: "prototype" or "metropolis".
	Acceptance string `mapstructure:"acceptance" yaml:"acceptance"`
}

// Config drives the guidance state machine.
type Config struct {
	// InitialTimer is the number of ticks to wait before the first build step.
	InitialTimer int `mapstructure:"initial_timer" yaml:"initial_timer"`
	// BuildDelay is the tick period of the orient/generate cycle.
	BuildDelay int `mapstructure:"build_delay" yaml:"build_delay"`
	// Epsilon is the smallest marginal value still worth prescribing.
	Epsilon       float64 `mapstructure:"epsilon" yaml:"epsilon"`
	MaxPrescribed int     `mapstructure:"max_prescribed" yaml:"max_prescribed"`
	TestMode      bool    `mapstructure:"test_mode" yaml:"test_mode"`
	// SeedFromClasses prescribes one pick per reduced equivalence class when
	// the area of interest is loaded.
	SeedFromClasses  bool         `mapstructure:"seed_from_classes" yaml:"seed_from_classes"`
	RefineAfterBuild bool         `mapstructure:"refine_after_build" yaml:"refine_after_build"`
	Anneal           AnnealConfig `mapstructure:"anneal" yaml:"anneal"`
	// Seed fixes the search randomness; 0 seeds from the clock.
	Seed int64 `mapstructure:"seed" yaml:"seed"`

	// Rng overrides Seed when set.
	Rng *rand.Rand `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns the settings the prototype shipped with.
func DefaultConfig() Config {
	return Config{
		InitialTimer:    60,
		BuildDelay:      4,
		Epsilon:         0.0001,
		MaxPrescribed:   40,
		SeedFromClasses: true,
		Anneal: AnnealConfig{
			StartTemperature: 100,
			Step:             0.05,
			Acceptance:       "prototype",
		},
	}
}

// Cap is the largest number of prescribed images.
func (c Config) Cap() int {
	if c.TestMode {
		return testModeCap
	}
	return c.MaxPrescribed
}

// Validate checks the settings the tick loop depends on.
func (c Config) Validate() error {
	if c.InitialTimer < 0 {
		return fmt.Errorf("guidance.initial_timer must not be negative")
	}
	if c.BuildDelay < 2 {
		return fmt.Errorf("guidance.build_delay must be at least 2, got %d", c.BuildDelay)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("guidance.epsilon must not be negative")
	}
	if c.MaxPrescribed < 1 {
		return fmt.Errorf("guidance.max_prescribed must be positive")
	}
	if c.Anneal.StartTemperature <= 0 || c.Anneal.Step <= 0 {
		return fmt.Errorf("guidance.anneal temperature and step must be positive")
	}
	if _, err := AcceptanceByName(c.Anneal.Acceptance); err != nil {
		return err
	}
	return nil
}
