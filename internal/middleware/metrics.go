package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"reelstream/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware recording request counts and
// latency per bounded path label. Stream requests also track open relays and
// the media bytes written to clients.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := metrics.NormalizePath(c.Request().URL.Path)
			stream := path == "/stream"

			m.RequestsInFlight.Inc()
			if stream {
				m.ActiveStreams.Inc()
			}
			defer func() {
				m.RequestsInFlight.Dec()
				if stream {
					m.ActiveStreams.Dec()
				}
			}()

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			code := responseStatus(c, err)
			status := strconv.Itoa(code)
			method := metrics.NormalizeMethod(c.Request().Method)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(elapsed)

			if stream && code < http.StatusMultipleChoices && c.Response().Size > 0 {
				m.RelayedBytes.Add(float64(c.Response().Size))
			}
			return err
		}
	}
}

// responseStatus is the status the client will see. An *echo.HTTPError is
// rendered by the central error handler after the chain returns, so its code
// wins while nothing has been committed yet.
func responseStatus(c echo.Context, err error) int {
	var he *echo.HTTPError
	if err != nil && !c.Response().Committed && errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}
