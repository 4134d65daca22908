// Package service sequences credential provisioning, URL resolution and the
// upstream fetch for one stream request.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reelstream/internal/model"
	"reelstream/internal/resolver"
)

// ErrInvalidRequest is returned when the request carries no video identifier.
var ErrInvalidRequest = errors.New("videoId is required")

// relayedHeaders are the only upstream response headers passed to the client.
var relayedHeaders = []string{
	"Content-Length",
	"Content-Range",
	"Content-Type",
	"Accept-Ranges",
}

// CredentialSource yields the cookie jar path for the resolver, if any.
type CredentialSource interface {
	Ensure() (path string, ok bool)
}

// Fetcher performs the range-aware upstream GET.
type Fetcher interface {
	Fetch(ctx context.Context, directURL, rangeHeader string) (*model.UpstreamResponse, error)
}

// Observer receives resolution outcomes. *metrics.Metrics is adapted to it in
// NewResolutionObserver.
type Observer interface {
	ObserveResolution(strategy string, ok bool, d time.Duration)
}

// Strategy names the resolver deployment for logs and metrics.
type Strategy string

// StreamService opens upstream media streams. It keeps no per-request state,
// so concurrent requests run fully independently.
type StreamService struct {
	credentials CredentialSource
	resolver    resolver.Resolver
	fetcher     Fetcher
	strategy    Strategy
	observer    Observer
	logger      *slog.Logger
}

// NewStreamService creates a StreamService. observer may be nil.
func NewStreamService(creds CredentialSource, r resolver.Resolver, f Fetcher, strategy Strategy, observer Observer, logger *slog.Logger) *StreamService {
	return &StreamService{
		credentials: creds,
		resolver:    r,
		fetcher:     f,
		strategy:    strategy,
		observer:    observer,
		logger:      logger.With("component", "stream_service"),
	}
}

// Open validates req, resolves its identifier and fetches the upstream media.
// Steps run strictly in order and the first failure is returned unchanged
// (wrapped) for the handler to classify. On success the caller owns the
// response body and must close it.
func (s *StreamService) Open(ctx context.Context, req model.StreamRequest) (*model.UpstreamResponse, error) {
	id := strings.TrimSpace(req.ExternalID)
	if id == "" {
		return nil, ErrInvalidRequest
	}

	credPath, _ := s.credentials.Ensure()

	start := time.Now()
	directURL, err := s.resolver.Resolve(ctx, id, credPath)
	if s.observer != nil {
		s.observer.ObserveResolution(string(s.strategy), err == nil, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	s.logger.Debug("fetching upstream",
		"video_id", id,
		"has_credentials", credPath != "",
		"range", req.Range,
	)

	resp, err := s.fetcher.Fetch(ctx, directURL, req.Range)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	resp.Header = FilterResponseHeaders(resp.Header)
	return resp, nil
}

// FilterResponseHeaders keeps only the headers needed for seekable playback.
func FilterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(relayedHeaders))
	for _, key := range relayedHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[key] = vals
		}
	}
	return dst
}
