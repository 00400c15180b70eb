package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsight_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallsight_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	rectificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsight_rectifications_total",
			Help: "Total number of perspective rectifications",
		},
		[]string{"status"}, // status: success, degenerate, error
	)

	rectificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wallsight_rectification_duration_seconds",
			Help:    "Perspective rectification duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsight_fingerprint_extractions_total",
			Help: "Total number of fingerprint extractions",
		},
		[]string{"status"}, // status: success, no_features
	)

	fingerprintKeypoints = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wallsight_fingerprint_keypoints",
			Help:    "Number of keypoints in extracted fingerprints",
			Buckets: []float64{0, 10, 25, 50, 100, 200, 300, 400, 500, 1000},
		},
	)

	matchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsight_match_attempts_total",
			Help: "Total number of frame-to-fingerprint match attempts",
		},
		[]string{"source", "outcome"}, // source: http, websocket; outcome: match, no_match
	)

	matchInliers = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallsight_match_inliers",
			Help:    "RANSAC inlier count per match attempt",
			Buckets: []float64{0, 4, 10, 20, 50, 100, 200, 500},
		},
		[]string{"source"},
	)

	matchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallsight_match_duration_seconds",
			Help:    "Match duration in seconds, including frame feature detection",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsight_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wallsight_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallsight_websocket_active_connections",
			Help: "Number of active relocalization WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsight_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

func observeMatch(source string, inliers int, isMatch bool, seconds float64) {
	outcome := "no_match"
	if isMatch {
		outcome = "match"
	}
	matchAttemptsTotal.WithLabelValues(source, outcome).Inc()
	matchInliers.WithLabelValues(source).Observe(float64(inliers))
	matchDuration.WithLabelValues(source).Observe(seconds)
}
