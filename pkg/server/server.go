// Package server provides a public API for embedding the farm-health service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rkm/farm-health/internal/analysis"
	"github.com/rkm/farm-health/internal/api"
	"github.com/rkm/farm-health/internal/config"
	"github.com/rkm/farm-health/internal/session"
)

// Options configures the farm-health server.
type Options struct {
	// BaseURL is the public-facing URL for self-referential links (required).
	// Example: "https://farm.example.com" or "http://localhost:8080"
	BaseURL string

	// AnalysisURL is the base URL of the crop analysis service.
	// Default: "http://127.0.0.1:5000"
	AnalysisURL string

	// Timeout bounds a single analysis request.
	// Default: 120s
	Timeout time.Duration

	// DefaultCrop is the crop selected when the session starts.
	// Default: "wheat"
	DefaultCrop string

	// AllowedOrigins lists the CORS origins allowed to call the API.
	// Default: ["*"]
	AllowedOrigins []string

	// RateLimit is the sustained number of analysis submissions per second.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the number of submissions allowed in a burst.
	// Default: 3
	RateBurst int

	// Map configures the initial map view. Zero values take the defaults
	// of the standalone server.
	Map config.MapConfig

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a farm-health server that can be embedded in another application.
// It owns one analysis session whose event loop runs until Close.
type Server struct {
	router     chi.Router
	controller *session.Controller
	cancel     context.CancelFunc
	stopped    chan struct{}
}

// New creates a new farm-health server with the given options and starts its
// session loop.
func New(opts Options) (*Server, error) {
	// Apply defaults
	if opts.AnalysisURL == "" {
		opts.AnalysisURL = "http://127.0.0.1:5000"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.DefaultCrop == "" {
		opts.DefaultCrop = string(analysis.DefaultCropType)
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RateBurst == 0 {
		opts.RateBurst = 3
	}
	if opts.Map.ImageryURL == "" {
		opts.Map = config.MapConfig{
			CenterLat:  22.5645,
			CenterLng:  72.9289,
			Zoom:       10,
			ImageryURL: "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			LabelsURL:  "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Build internal config
	cfg := &config.Config{
		Server: config.ServerConfig{
			BaseURL:        opts.BaseURL,
			AllowedOrigins: opts.AllowedOrigins,
		},
		Analysis: config.AnalysisConfig{
			BaseURL: opts.AnalysisURL,
			Timeout: opts.Timeout,
		},
		Session: config.SessionConfig{
			DefaultCrop: opts.DefaultCrop,
			STACVersion: "1.0.0",
		},
		Map: opts.Map,
		RateLimit: config.RateLimitConfig{
			Rate:  opts.RateLimit,
			Burst: opts.RateBurst,
		},
	}

	if cfg.Server.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	crop, err := analysis.ParseCropType(cfg.Session.DefaultCrop)
	if err != nil {
		return nil, fmt.Errorf("invalid default crop: %w", err)
	}

	controller := newController(cfg, crop, opts.Logger)
	handlers := api.NewHandlers(cfg, controller, opts.Logger)
	router := api.NewRouter(handlers, opts.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:     router,
		controller: controller,
		cancel:     cancel,
		stopped:    make(chan struct{}),
	}
	go func() {
		defer close(s.stopped)
		controller.Run(ctx)
	}()

	opts.Logger.Info("farm-health server ready",
		"analysis_url", cfg.Analysis.BaseURL,
		"default_crop", string(crop),
	)
	return s, nil
}

// newController wires the analysis client and orchestrator into a session
// controller. The caller must start its Run loop.
func newController(cfg *config.Config, crop analysis.CropType, logger *slog.Logger) *session.Controller {
	client := analysis.NewClient(cfg.Analysis.BaseURL, cfg.Analysis.Timeout).WithLogger(logger)
	orchestrator := analysis.NewOrchestrator(client, cfg.Analysis.Timeout).WithLogger(logger)
	sess := session.New(orchestrator, crop).WithLogger(logger)
	return session.NewController(sess).WithLogger(logger)
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close stops the session loop. Requests still in flight are abandoned.
func (s *Server) Close() {
	s.cancel()
	<-s.stopped
}
