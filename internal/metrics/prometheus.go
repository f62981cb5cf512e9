// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	FramesCapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbnail_studio_frames_captured_total",
		Help: "Total number of frame captures, by result",
	}, []string{"result"})

	GenerationRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thumbnail_studio_generation_requests_total",
		Help: "Total number of generate and refine calls, by operation and result",
	}, []string{"op", "result"})

	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thumbnail_studio_generation_duration_seconds",
		Help:    "Duration of generate and refine calls to the image model",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"op"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thumbnail_studio_http_request_duration_seconds",
		Help:    "Duration of HTTP requests, by route pattern, method and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "thumbnail_studio_active_sessions",
		Help: "Number of live editing sessions",
	})
)
