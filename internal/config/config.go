package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
	"github.com/MeKo-Tech/wallsight/internal/project"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
	"github.com/MeKo-Tech/wallsight/internal/relocalize"
)

// Config represents the complete configuration for the wallsight application.
// It includes settings for all commands (rectify, fingerprint, match, scan,
// serve) and supports loading from configuration files, environment variables,
// and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Rectify    RectifyConfig       `mapstructure:"rectify" yaml:"rectify" json:"rectify"`
	Features   FeaturesConfig      `mapstructure:"features" yaml:"features" json:"features"`
	Matcher    matcher.Config      `mapstructure:"matcher" yaml:"matcher" json:"matcher"`
	Relocalize RelocalizeConfig    `mapstructure:"relocalize" yaml:"relocalize" json:"relocalize"`
	Store      project.StoreConfig `mapstructure:"store" yaml:"store" json:"store"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// RectifyConfig contains perspective rectification settings.
type RectifyConfig struct {
	MaxOutputSide int    `mapstructure:"max_output_side" yaml:"max_output_side" json:"max_output_side"`
	DebugDir      string `mapstructure:"debug_dir" yaml:"debug_dir" json:"debug_dir"`
}

// FeaturesConfig contains ORB feature extraction settings.
type FeaturesConfig struct {
	MaxFeatures   int     `mapstructure:"max_features" yaml:"max_features" json:"max_features"`
	Levels        int     `mapstructure:"levels" yaml:"levels" json:"levels"`
	ScaleFactor   float64 `mapstructure:"scale_factor" yaml:"scale_factor" json:"scale_factor"`
	FastThreshold int     `mapstructure:"fast_threshold" yaml:"fast_threshold" json:"fast_threshold"`
	BlurSigma     float64 `mapstructure:"blur_sigma" yaml:"blur_sigma" json:"blur_sigma"`
}

// RelocalizeConfig contains frame scanning settings.
type RelocalizeConfig struct {
	Interval   time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	MaxWorkers int           `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataMBPerDay   int `mapstructure:"max_data_mb_per_day" yaml:"max_data_mb_per_day" json:"max_data_mb_per_day"`
}

// Enabled reports whether any limit is set.
func (r RateLimitConfig) Enabled() bool {
	return r.RequestsPerMinute > 0 || r.RequestsPerHour > 0 || r.MaxRequestsPerDay > 0 || r.MaxDataMBPerDay > 0
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	orb := features.DefaultORBConfig()
	rect := rectify.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Rectify: RectifyConfig{
			MaxOutputSide: rect.MaxOutputSide,
			DebugDir:      rect.DebugDir,
		},
		Features: FeaturesConfig{
			MaxFeatures:   orb.MaxFeatures,
			Levels:        orb.Levels,
			ScaleFactor:   orb.ScaleFactor,
			FastThreshold: orb.FastThreshold,
			BlurSigma:     orb.BlurSigma,
		},
		Matcher: matcher.DefaultConfig(),
		Relocalize: RelocalizeConfig{
			Interval:   relocalize.DefaultInterval,
			MaxWorkers: relocalize.DefaultParallelConfig().MaxWorkers,
		},
		Store: project.DefaultStoreConfig(),
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
		},
	}
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration and returns the first error found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Rectify.MaxOutputSide < 0 {
		return fmt.Errorf("invalid rectify.max_output_side: %d (must not be negative)", c.Rectify.MaxOutputSide)
	}
	if err := c.ToORBConfig().Validate(); err != nil {
		return fmt.Errorf("invalid features config: %w", err)
	}
	if err := c.Matcher.Validate(); err != nil {
		return fmt.Errorf("invalid matcher config: %w", err)
	}
	if c.Relocalize.Interval <= 0 {
		return fmt.Errorf("invalid relocalize.interval: %s (must be positive)", c.Relocalize.Interval)
	}
	if c.Relocalize.MaxWorkers <= 0 {
		return fmt.Errorf("invalid relocalize.max_workers: %d (must be positive)", c.Relocalize.MaxWorkers)
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataMBPerDay < 0 {
		return errors.New("invalid server.rate_limit: limits must not be negative")
	}
	return nil
}

// ToRectifyConfig converts to rectify.Config.
func (c *Config) ToRectifyConfig() rectify.Config {
	cfg := rectify.DefaultConfig()
	cfg.MaxOutputSide = c.Rectify.MaxOutputSide
	cfg.DebugDir = c.Rectify.DebugDir
	return cfg
}

// ToORBConfig converts to features.ORBConfig.
func (c *Config) ToORBConfig() features.ORBConfig {
	return features.ORBConfig{
		MaxFeatures:   c.Features.MaxFeatures,
		Levels:        c.Features.Levels,
		ScaleFactor:   c.Features.ScaleFactor,
		FastThreshold: c.Features.FastThreshold,
		BlurSigma:     c.Features.BlurSigma,
	}
}

// ToScannerConfig converts to relocalize.Config.
func (c *Config) ToScannerConfig() relocalize.Config {
	return relocalize.Config{Interval: c.Relocalize.Interval}
}

// ToParallelConfig converts to relocalize.ParallelConfig.
func (c *Config) ToParallelConfig() relocalize.ParallelConfig {
	cfg := relocalize.DefaultParallelConfig()
	cfg.MaxWorkers = c.Relocalize.MaxWorkers
	return cfg
}

// ListenAddr returns the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
