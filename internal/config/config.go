// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/aerialguide/internal/guidance"
	"github.com/xkilldash9x/aerialguide/internal/host"
	"github.com/xkilldash9x/aerialguide/internal/runner"
	"github.com/xkilldash9x/aerialguide/internal/sqm"
	"github.com/xkilldash9x/aerialguide/internal/world"
)

// ViennaAttackDates is the raid calendar the model ships with.
var ViennaAttackDates = []string{
	"1944-03-17", "1944-05-24", "1944-05-29", "1944-06-16", "1944-06-26", "1944-07-08",
	"1944-07-16", "1944-08-22", "1944-08-23", "1944-09-10", "1944-10-07", "1944-10-11",
	"1944-10-13", "1944-10-17", "1944-11-01", "1944-11-03", "1944-11-05", "1944-11-06",
	"1944-11-07", "1944-11-17", "1944-11-18", "1944-11-19", "1944-12-02", "1944-12-03",
	"1944-12-11", "1944-12-18", "1944-12-27", "1945-01-15", "1945-01-21", "1945-02-07",
	"1945-02-08", "1945-02-13", "1945-02-14", "1945-02-15", "1945-02-19", "1945-02-20",
	"1945-02-21", "1945-03-04", "1945-03-12", "1945-03-15", "1945-03-16", "1945-03-20",
	"1945-03-21", "1945-03-22", "1945-03-23", "1945-03-30",
}

// Store drivers.
const (
	StoreNone     = "none"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Interface defines the contract for accessing application configuration.
type Interface interface {
	Logger() LoggerConfig
	Model() world.Params
	SQM() SQMConfig
	Guidance() guidance.Config
	Store() StoreConfig
	Runner() runner.Config
	Settings() (host.Settings, error)

	SetGuidanceRefineAfterBuild(bool)
	SetGuidanceTestMode(bool)
	SetGuidanceSeed(int64)
	SetRunnerMaxTicks(int)
	SetRunnerTicksPerSecond(float64)
	SetRunnerConcurrency(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	ModelCfg    world.Params    `mapstructure:"model" yaml:"model"`
	SQMCfg      SQMConfig       `mapstructure:"sqm" yaml:"sqm"`
	GuidanceCfg guidance.Config `mapstructure:"guidance" yaml:"guidance"`
	StoreCfg    StoreConfig     `mapstructure:"store" yaml:"store"`
	RunnerCfg   runner.Config   `mapstructure:"runner" yaml:"runner"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig      { return c.LoggerCfg }
func (c *Config) Model() world.Params       { return c.ModelCfg }
func (c *Config) SQM() SQMConfig            { return c.SQMCfg }
func (c *Config) Guidance() guidance.Config { return c.GuidanceCfg }
func (c *Config) Store() StoreConfig        { return c.StoreCfg }
func (c *Config) Runner() runner.Config     { return c.RunnerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetGuidanceRefineAfterBuild(b bool) { c.GuidanceCfg.RefineAfterBuild = b }
func (c *Config) SetGuidanceTestMode(b bool)         { c.GuidanceCfg.TestMode = b }
func (c *Config) SetGuidanceSeed(s int64)            { c.GuidanceCfg.Seed = s }
func (c *Config) SetRunnerMaxTicks(n int)            { c.RunnerCfg.MaxTicks = n }
func (c *Config) SetRunnerTicksPerSecond(f float64)  { c.RunnerCfg.TicksPerSecond = f }
func (c *Config) SetRunnerConcurrency(n int)         { c.RunnerCfg.Concurrency = n }

// Settings assembles the model constants a controller needs.
func (c *Config) Settings() (host.Settings, error) {
	composite, err := sqm.CompositeByName(c.SQMCfg.Composite)
	if err != nil {
		return host.Settings{}, err
	}
	p := c.SQMCfg.Params
	p.DetailScaleMax = c.ModelCfg.DetailScaleMax
	model := c.ModelCfg
	model.AttackDates = append([]string(nil), c.ModelCfg.AttackDates...)
	return host.Settings{
		World:     model,
		SQM:       p,
		Composite: composite,
		Guidance:  c.GuidanceCfg,
	}, nil
}

// LoggerConfig holds the logging setup.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SQMConfig selects the quality model constants and composite.
type SQMConfig struct {
	Params    sqm.Params `mapstructure:",squash" yaml:",inline"`
	Composite string     `mapstructure:"composite" yaml:"composite"`
}

// StoreConfig selects where the event log is persisted.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "aerialguide")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Model --
	model := world.DefaultParams()
	v.SetDefault("model.day_range", model.DayRange)
	v.SetDefault("model.detail_scale_max", model.DetailScaleMax)
	v.SetDefault("model.attack_dates", ViennaAttackDates)

	// -- SQM --
	q := sqm.DefaultParams()
	v.SetDefault("sqm.delay_threshold_days", q.DelayThresholdDays)
	v.SetDefault("sqm.project_timespan_days", q.ProjectTimespanDays)
	v.SetDefault("sqm.composite", sqm.RichComposite{}.Name())

	// -- Guidance --
	g := guidance.DefaultConfig()
	v.SetDefault("guidance.initial_timer", g.InitialTimer)
	v.SetDefault("guidance.build_delay", g.BuildDelay)
	v.SetDefault("guidance.epsilon", g.Epsilon)
	v.SetDefault("guidance.max_prescribed", g.MaxPrescribed)
	v.SetDefault("guidance.test_mode", g.TestMode)
	v.SetDefault("guidance.seed_from_classes", g.SeedFromClasses)
	v.SetDefault("guidance.refine_after_build", g.RefineAfterBuild)
	v.SetDefault("guidance.seed", 0)
	v.SetDefault("guidance.anneal.start_temperature", g.Anneal.StartTemperature)
	v.SetDefault("guidance.anneal.step", g.Anneal.Step)
	v.SetDefault("guidance.anneal.acceptance", g.Anneal.Acceptance)

	// -- Store --
	v.SetDefault("store.driver", StoreNone)
	v.SetDefault("store.dsn", "")

	// -- Runner --
	v.SetDefault("runner.ticks_per_second", 60)
	v.SetDefault("runner.max_ticks", 20000)
	v.SetDefault("runner.concurrency", 4)
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The DSN usually carries a password, so it is read from the environment.
	_ = v.BindEnv("store.dsn", "AERIALGUIDE_STORE_DSN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.StoreCfg.Driver == StoreSQLite && cfg.StoreCfg.DSN != "" {
		expanded, err := homedir.Expand(cfg.StoreCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("error expanding store.dsn: %w", err)
		}
		cfg.StoreCfg.DSN = expanded
	}
	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("error expanding logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ModelCfg.DayRange <= 0 {
		return fmt.Errorf("model.day_range must be a positive integer")
	}
	if c.ModelCfg.DetailScaleMax <= 0 {
		return fmt.Errorf("model.detail_scale_max must be positive")
	}
	if c.SQMCfg.Params.DelayThresholdDays <= 0 || c.SQMCfg.Params.ProjectTimespanDays <= 0 {
		return fmt.Errorf("sqm.delay_threshold_days and sqm.project_timespan_days must be positive")
	}
	if _, err := sqm.CompositeByName(c.SQMCfg.Composite); err != nil {
		return fmt.Errorf("sqm.composite: %w", err)
	}
	if err := c.GuidanceCfg.Validate(); err != nil {
		return err
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if c.RunnerCfg.MaxTicks <= 0 {
		return fmt.Errorf("runner.max_ticks must be a positive integer")
	}
	if c.RunnerCfg.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	return nil
}

// Validate checks the store driver and its DSN.
func (s *StoreConfig) Validate() error {
	switch strings.ToLower(s.Driver) {
	case "", StoreNone:
		return nil
	case StorePostgres, StoreSQLite:
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for driver %q", s.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
}
