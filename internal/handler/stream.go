package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"reelstream/internal/client"
	"reelstream/internal/model"
	"reelstream/internal/resolver"
	"reelstream/internal/service"
)

// relayChunkSize is the read size per relayed chunk; each chunk is flushed.
const relayChunkSize = 32 * 1024

// signedQueryPattern matches the query string of URLs embedded in error
// messages. Resolved media URLs carry their signature there.
var signedQueryPattern = regexp.MustCompile(`(https?://[^\s?"]+)\?[^\s"]*`)

// RelayError is a body read failure before any byte reached the client.
type RelayError struct {
	Err error
}

func (e *RelayError) Error() string { return fmt.Sprintf("relay: %v", e.Err) }

func (e *RelayError) Unwrap() error { return e.Err }

// StreamHandler relays upstream media for a video id.
type StreamHandler struct {
	service *service.StreamService
	logger  *slog.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(svc *service.StreamService, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		service: svc,
		logger:  logger.With("component", "stream_handler"),
	}
}

// Handle serves GET /stream?videoId=<id>.
func (h *StreamHandler) Handle(c echo.Context) error {
	req := c.Request()

	sr := model.StreamRequest{
		ExternalID: c.QueryParam("videoId"),
		Range:      req.Header.Get("Range"),
	}

	resp, err := h.service.Open(req.Context(), sr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return h.relay(c, resp, sr.ExternalID)
}

// relay writes status, headers and body. The first chunk is read before the
// status line is committed so an immediate read failure can still become a
// 500; after that, failures can only cut the connection.
func (h *StreamHandler) relay(c echo.Context, resp *model.UpstreamResponse, videoID string) error {
	buf := make([]byte, relayChunkSize)
	n, err := io.ReadAtLeast(resp.Body, buf, 1)
	if err != nil && !errors.Is(err, io.EOF) {
		return h.mapError(c, &RelayError{Err: err})
	}

	w := c.Response()
	for key, vals := range resp.Header {
		w.Header()[key] = vals
	}
	// net/http does not allow a custom reason phrase; the code is relayed and
	// the standard text is written.
	w.WriteHeader(resp.StatusCode)

	if n > 0 {
		if _, werr := w.Write(buf[:n]); werr != nil {
			h.logClientGone(c, videoID, werr)
			return nil
		}
		w.Flush()
	}
	if err != nil {
		return nil // io.EOF: body fit in the first chunk
	}

	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				h.logClientGone(c, videoID, werr)
				return nil
			}
			w.Flush()
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			if c.Request().Context().Err() != nil {
				h.logClientGone(c, videoID, rerr)
				return nil
			}
			h.logger.Error("upstream stream broke mid-body",
				"err", sanitizeError(rerr),
				"video_id", videoID,
				"bytes_out", w.Size,
			)
			// Headers are committed; abort so the client sees a truncated
			// response instead of a clean end of a chunked body.
			panic(http.ErrAbortHandler)
		}
	}
}

func (h *StreamHandler) logClientGone(c echo.Context, videoID string, err error) {
	h.logger.Debug("client stopped reading",
		"err", err,
		"video_id", videoID,
		"bytes_out", c.Response().Size,
	)
}

func (h *StreamHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrInvalidRequest) {
		h.logger.Warn("rejected stream request", "err", err)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "missing videoId",
		})
	}

	h.logger.Error("stream error",
		"err", sanitizeError(err),
		"video_id", c.QueryParam("videoId"),
	)

	var rerr *resolver.ResolutionError
	if errors.As(err, &rerr) {
		// Stderr stays in the log line above.
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error":     "failed to retrieve video URL",
			"exit_code": rerr.ExitCode,
		})
	}

	if errors.Is(err, client.ErrEmptyBody) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "no content from upstream",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "request canceled",
		})
	}

	var upErr *client.UpstreamError
	if errors.As(err, &upErr) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "upstream request failed",
		})
	}

	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

// sanitizeError redacts URL query strings, which hold upstream signatures.
func sanitizeError(err error) string {
	return signedQueryPattern.ReplaceAllString(err.Error(), "${1}?[REDACTED]")
}
