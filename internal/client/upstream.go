// Package client provides the upstream HTTP fetcher for resolved media URLs.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"reelstream/internal/config"
	"reelstream/internal/identity"
	"reelstream/internal/metrics"
	"reelstream/internal/model"
)

// ErrEmptyBody is returned when the upstream answered without a body to relay.
var ErrEmptyBody = errors.New("upstream returned no body")

// UpstreamError is a failure to talk to the resolved URL at all.
// Host is kept instead of the URL because the query carries the signature.
type UpstreamError struct {
	Host string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Host, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UpstreamClient fetches media from resolved upstream URLs.
type UpstreamClient struct {
	identity    identity.Identity
	timeout     time.Duration
	dialTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tlsConfig   *tls.Config // nil uses the system roots
}

// NewUpstreamClient creates an UpstreamClient.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, id identity.Identity, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	return &UpstreamClient{
		identity:    id,
		timeout:     time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		dialTimeout: time.Duration(cfg.Upstream.DialTimeoutSeconds) * time.Second,
		logger:      logger.With("component", "upstream_client"),
		metrics:     m,
	}
}

// newHTTPClient builds a client for a single fetch. Signed URLs are short-lived
// and per-request, so nothing is pooled across requests.
func (c *UpstreamClient) newHTTPClient() (*http.Client, *http.Transport) {
	dialer := &net.Dialer{Timeout: c.dialTimeout, KeepAlive: 30 * time.Second}
	network := c.identity.DialNetwork()
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig:       c.tlsConfig,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		// Transparent gzip would drop Content-Length and break byte ranges.
		DisableCompression: true,
	}
	return &http.Client{Transport: transport, Timeout: c.timeout}, transport
}

// Fetch issues a GET for directURL, forwarding rangeHeader verbatim when set.
// The context controls the whole exchange including the body: when the
// client disconnects, the upstream read is aborted. The caller must close
// the returned body.
func (c *UpstreamClient) Fetch(ctx context.Context, directURL, rangeHeader string) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, directURL, http.NoBody)
	if err != nil {
		return nil, &UpstreamError{Host: "invalid-url", Err: fmt.Errorf("build upstream request: %w", unwrapURLError(err))}
	}
	c.identity.Apply(req.Header)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	c.logger.Debug("upstream request",
		"host", req.URL.Host,
		"range", rangeHeader,
	)

	httpClient, transport := c.newHTTPClient()

	start := time.Now()
	resp, err := httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		transport.CloseIdleConnections()
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, &UpstreamError{Host: req.URL.Host, Err: unwrapURLError(err)}
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	// Content-Length 0 is an empty body even when the client wrapped it for a
	// timeout or it came over HTTP/2, so the declared length decides.
	if resp.Body == nil || resp.ContentLength == 0 {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		transport.CloseIdleConnections()
		return nil, fmt.Errorf("%w (status %d)", ErrEmptyBody, resp.StatusCode)
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       &scopedBody{ReadCloser: resp.Body, transport: transport},
	}, nil
}

// scopedBody releases the per-fetch transport together with the body.
type scopedBody struct {
	io.ReadCloser
	transport *http.Transport
}

func (b *scopedBody) Close() error {
	err := b.ReadCloser.Close()
	b.transport.CloseIdleConnections()
	return err
}

// unwrapURLError strips *url.Error so the signed URL does not end up in logs.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
