// Package model defines shared types for the stream proxy and the catalog.
package model

import (
	"io"
	"net/http"
)

// StreamRequest is one inbound playback request.
type StreamRequest struct {
	ExternalID string
	Range      string // raw Range header, empty when the client wants the full resource
}

// UpstreamResponse is the origin response handed from the fetcher to the relay.
// The relay owns Body once it receives it and must close it.
type UpstreamResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser
}

// Video is the display model returned by the listing endpoint.
type Video struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Thumbnail   string   `json:"thumbnail"`
	Tags        []string `json:"tags"`
	UploadedAt  string   `json:"uploadedAt"`
	Duration    string   `json:"duration"`
	Size        int64    `json:"size"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	PlotSummary string   `json:"plot_summary,omitempty"`
}
