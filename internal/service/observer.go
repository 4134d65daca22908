package service

import (
	"time"

	"reelstream/internal/metrics"
)

type metricsObserver struct {
	m *metrics.Metrics
}

// NewResolutionObserver records resolutions into Prometheus metrics.
func NewResolutionObserver(m *metrics.Metrics) Observer {
	return metricsObserver{m: m}
}

func (o metricsObserver) ObserveResolution(strategy string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	o.m.ResolutionsTotal.WithLabelValues(strategy, result).Inc()
	o.m.ResolutionDuration.WithLabelValues(strategy).Observe(d.Seconds())
}
