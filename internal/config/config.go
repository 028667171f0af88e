// Package config provides configuration management for the farm-health service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/rkm/farm-health/internal/analysis"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Analysis  AnalysisConfig  `envPrefix:"ANALYSIS_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	Map       MapConfig       `envPrefix:"MAP_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	BaseURL         string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// AnalysisConfig contains analysis service client configuration.
type AnalysisConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://127.0.0.1:5000"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"120s"`
}

// SessionConfig contains defaults for the analysis session.
type SessionConfig struct {
	DefaultCrop string `env:"DEFAULT_CROP" envDefault:"wheat"`
	STACVersion string `env:"STAC_VERSION" envDefault:"1.0.0"`
}

// TileLayer is a basemap layer offered to the map widget.
type TileLayer struct {
	URL         string  `json:"url"`
	Attribution string  `json:"attribution"`
	Opacity     float64 `json:"opacity"`
}

// MapConfig contains the initial map view served to the browser.
type MapConfig struct {
	CenterLat  float64 `env:"CENTER_LAT" envDefault:"22.5645"`
	CenterLng  float64 `env:"CENTER_LNG" envDefault:"72.9289"`
	Zoom       int     `env:"ZOOM" envDefault:"10"`
	ImageryURL string  `env:"IMAGERY_URL" envDefault:"https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"`
	LabelsURL  string  `env:"LABELS_URL" envDefault:"https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"`
}

// TileLayers returns the basemap layers in drawing order.
func (m *MapConfig) TileLayers() []TileLayer {
	layers := []TileLayer{
		{URL: m.ImageryURL, Attribution: "&copy; Esri", Opacity: 1},
	}
	if m.LabelsURL != "" {
		layers = append(layers, TileLayer{URL: m.LabelsURL, Attribution: "&copy; OpenStreetMap contributors", Opacity: 0.3})
	}
	return layers
}

// RateLimitConfig limits how often analyses may be submitted.
type RateLimitConfig struct {
	// Rate is the sustained number of submissions per second. 0 disables the limit.
	Rate  float64 `env:"RATE" envDefault:"1"`
	Burst int     `env:"BURST" envDefault:"3"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base URL is required")
	}

	// Validate analysis config
	if c.Analysis.BaseURL == "" {
		return fmt.Errorf("analysis service base URL is required")
	}

	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis timeout must be positive, got %s", c.Analysis.Timeout)
	}

	// Validate session config
	if _, err := analysis.ParseCropType(c.Session.DefaultCrop); err != nil {
		return fmt.Errorf("invalid default crop: %w", err)
	}

	if c.Session.STACVersion == "" {
		return fmt.Errorf("STAC version is required")
	}

	// Validate map config
	if c.Map.CenterLat < -90 || c.Map.CenterLat > 90 {
		return fmt.Errorf("map center latitude must be between -90 and 90, got %v", c.Map.CenterLat)
	}

	if c.Map.CenterLng < -180 || c.Map.CenterLng > 180 {
		return fmt.Errorf("map center longitude must be between -180 and 180, got %v", c.Map.CenterLng)
	}

	if c.Map.Zoom < 0 || c.Map.Zoom > 22 {
		return fmt.Errorf("map zoom must be between 0 and 22, got %d", c.Map.Zoom)
	}

	if c.Map.ImageryURL == "" {
		return fmt.Errorf("map imagery URL is required")
	}

	// Validate rate limit config
	if c.RateLimit.Rate < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit.Rate)
	}

	if c.RateLimit.Rate > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1, got %d", c.RateLimit.Burst)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Crop returns the configured default crop type.
func (s *SessionConfig) Crop() analysis.CropType {
	crop, err := analysis.ParseCropType(s.DefaultCrop)
	if err != nil {
		return analysis.DefaultCropType
	}
	return crop
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
