package ai

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedtime_ai_requests_total",
			Help: "Total number of requests to AI providers.",
		},
		[]string{"provider", "model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bedtime_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
		[]string{"provider", "model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bedtime_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 15),
		},
		[]string{"provider", "model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bedtime_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 15),
		},
		[]string{"provider", "model"},
	)
)

func observeRequest(provider Provider, model, status string, duration time.Duration, usage UsageInfo) {
	aiRequestsTotal.WithLabelValues(string(provider), model, status).Inc()
	if status != "success" {
		return
	}
	aiRequestDuration.WithLabelValues(string(provider), model).Observe(duration.Seconds())
	if usage.TotalTokens > 0 {
		aiPromptTokens.WithLabelValues(string(provider), model).Observe(float64(usage.PromptTokens))
		aiCompletionTokens.WithLabelValues(string(provider), model).Observe(float64(usage.CompletionTokens))
	}
}
