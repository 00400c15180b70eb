package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/wallsight/internal/calibration"
	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/matcher"
	"github.com/MeKo-Tech/wallsight/internal/project"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
	"github.com/MeKo-Tech/wallsight/internal/relocalize"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	rectifier   *rectify.Rectifier
	extractor   *features.Extractor
	matcher     *matcher.Matcher
	store       project.Store
	scanner     relocalize.Config
	parallel    relocalize.ParallelConfig
	rateLimiter *RateLimiter
	logger      *slog.Logger

	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int

	Rectify  rectify.Config
	ORB      features.ORBConfig
	Matcher  matcher.Config
	Scanner  relocalize.Config
	Parallel relocalize.ParallelConfig

	RateLimit RateLimitConfig
}

// RateLimitConfig holds per-client limits; zero disables a limit.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

func (c RateLimitConfig) enabled() bool {
	return c.RequestsPerMinute > 0 || c.RequestsPerHour > 0 || c.MaxRequestsPerDay > 0 || c.MaxDataPerDay > 0
}

// Response types for API endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Time     string `json:"time"`
	Projects int    `json:"projects,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Guidance string `json:"guidance,omitempty"`
}

// MatchResponse is returned by POST /match.
type MatchResponse struct {
	matcher.Result
	ProjectID string         `json:"project_id,omitempty"`
	Corners   *geometry.Quad `json:"corners,omitempty"`
}

// AverageRequest is the body of POST /calibration/average.
type AverageRequest struct {
	Samples []calibration.Quaternion `json:"samples"`
}

// AverageResponse is returned by POST /calibration/average.
type AverageResponse struct {
	Average   calibration.Quaternion `json:"average"`
	Count     int                    `json:"count"`
	SpreadRad float64                `json:"spread_rad"`
	SpreadDeg float64                `json:"spread_deg"`
}

// ProjectSummary is the API view of a stored project.
type ProjectSummary struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Quad         geometry.Quad           `json:"quad"`
	SourceWidth  int                     `json:"source_width,omitempty"`
	SourceHeight int                     `json:"source_height,omitempty"`
	TargetWidth  int                     `json:"target_width,omitempty"`
	TargetHeight int                     `json:"target_height,omitempty"`
	Keypoints    int                     `json:"keypoints"`
	Calibration  *calibration.Quaternion `json:"calibration,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// ProjectListResponse is returned by GET /projects.
type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects"`
	Count    int              `json:"count"`
}

func summarize(p *project.Project) ProjectSummary {
	s := ProjectSummary{
		ID:           p.ID,
		Name:         p.Name,
		Quad:         p.Quad,
		SourceWidth:  p.SourceWidth,
		SourceHeight: p.SourceHeight,
		Keypoints:    p.Fingerprint.Len(),
		Calibration:  p.Calibration,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.Fingerprint != nil {
		s.TargetWidth, s.TargetHeight = p.Fingerprint.Width, p.Fingerprint.Height
	}
	return s
}

// NewServer creates a server. store may be nil, in which case the project
// endpoints answer 503.
func NewServer(config Config, store project.Store) *Server {
	orb := features.NewORB(config.ORB)
	s := &Server{
		rectifier:   rectify.New(config.Rectify),
		extractor:   features.NewExtractor(orb),
		matcher:     matcher.New(config.Matcher, orb),
		store:       store,
		scanner:     config.Scanner,
		parallel:    config.Parallel,
		logger:      slog.Default(),
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeout:     time.Duration(config.TimeoutSec) * time.Second,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 50
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if config.RateLimit.enabled() {
		rl := config.RateLimit
		s.rateLimiter = NewRateLimiter(rl.RequestsPerMinute, rl.RequestsPerHour, rl.MaxRequestsPerDay, rl.MaxDataPerDay)
	}
	return s
}

// WithLogger sets the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	if l != nil {
		s.logger = l
		s.rectifier = s.rectifier.WithLogger(l)
		s.matcher = s.matcher.WithLogger(l)
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/rectify", s.corsMiddleware(s.rateLimitMiddleware(s.rectifyHandler)))
	mux.HandleFunc("/fingerprint", s.corsMiddleware(s.rateLimitMiddleware(s.fingerprintHandler)))
	mux.HandleFunc("/match", s.corsMiddleware(s.rateLimitMiddleware(s.matchHandler)))
	mux.HandleFunc("/calibration/average", s.corsMiddleware(s.averageHandler))
	mux.HandleFunc("/projects", s.corsMiddleware(s.rateLimitMiddleware(s.projectsHandler)))
	mux.HandleFunc("/projects/{id}", s.corsMiddleware(s.projectHandler))
	mux.HandleFunc("/projects/{id}/target.png", s.corsMiddleware(s.projectTargetHandler))
	mux.HandleFunc("/ws/relocalize", s.relocalizeWebSocketHandler)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
