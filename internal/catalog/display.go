package catalog

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"reelstream/internal/model"
)

// isoDuration matches the subset of ISO-8601 durations the platform returns.
var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// StreamURL is the playable URL for a platform id: the local stream proxy.
func StreamURL(youtubeID string) string {
	return "/stream?videoId=" + url.QueryEscape(youtubeID)
}

// ToVideo shapes a stored row into the display model.
func ToVideo(r Row, now time.Time) model.Video {
	v := model.Video{
		ID:          r.ID,
		Title:       r.Title,
		URL:         StreamURL(r.YouTubeID),
		Thumbnail:   r.Thumbnail,
		Tags:        nonNil(r.Tags),
		UploadedAt:  r.PublishedAt,
		Duration:    "0:00",
		Category:    "Uncategorized",
		Description: r.Description,
		PlotSummary: r.PlotSummary,
	}
	if v.UploadedAt == "" {
		v.UploadedAt = r.CreatedAt
	}
	if v.UploadedAt == "" {
		v.UploadedAt = now.UTC().Format(time.RFC3339)
	}
	if r.Duration != "" {
		v.Duration = FormatDuration(r.Duration)
	}
	if len(r.Tags) > 0 && r.Tags[0] != "" {
		v.Category = r.Tags[0]
	}
	return v
}

// FormatDuration renders PT1H29M43S as 1:29:43 and PT4M5S as 4:05.
// Values that do not parse are returned unchanged.
func FormatDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil {
		return iso
	}
	part := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	h, mins, secs := part(m[1]), part(m[2]), part(m[3])
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}
