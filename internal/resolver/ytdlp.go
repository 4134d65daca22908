package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"reelstream/internal/config"
	"reelstream/internal/identity"
)

// YTDLP resolves identifiers by running yt-dlp in URL-only mode.
type YTDLP struct {
	runner      Runner
	binary      string
	platformURL string
	format      string
	jsRuntime   string
	identity    identity.Identity
	logger      *slog.Logger
}

// NewYTDLP creates a yt-dlp backed Resolver.
func NewYTDLP(cfg *config.Config, id identity.Identity, runner Runner, logger *slog.Logger) *YTDLP {
	return &YTDLP{
		runner:      runner,
		binary:      cfg.Resolver.Binary,
		platformURL: cfg.Resolver.PlatformURL,
		format:      cfg.Resolver.Format,
		jsRuntime:   cfg.Resolver.JSRuntime,
		identity:    id,
		logger:      logger.With("component", "ytdlp_resolver"),
	}
}

// WatchURL returns the platform page URL for an identifier.
func (r *YTDLP) WatchURL(externalID string) string {
	return r.platformURL + "/watch?v=" + url.QueryEscape(externalID)
}

// Args builds the yt-dlp argument vector.
func (r *YTDLP) Args(externalID, credentialPath string) []string {
	args := []string{"--no-cache-dir", "--no-playlist"}
	args = append(args, r.identity.ResolverArgs()...)
	args = append(args, "-f", r.format, "-g")
	if credentialPath != "" {
		args = append(args, "--cookies", credentialPath)
	}
	if r.jsRuntime != "" {
		args = append(args, "--js-runtimes", r.jsRuntime)
	}
	return append(args, r.WatchURL(externalID))
}

// Resolve runs yt-dlp once and returns the first URL line of its output.
// There is no retry; every call spawns a new process.
func (r *YTDLP) Resolve(ctx context.Context, externalID, credentialPath string) (string, error) {
	start := time.Now()
	res, err := r.runner.Run(ctx, r.binary, r.Args(externalID, credentialPath)...)
	if err != nil {
		return "", &ResolutionError{
			ExternalID: externalID,
			ExitCode:   -1,
			Stderr:     excerpt(scrub(string(res.Stderr), credentialPath)),
			Err:        fmt.Errorf("%w: %s: %w", ErrSpawn, r.binary, err),
		}
	}

	first := firstLine(string(res.Stdout))
	switch {
	case res.ExitCode != 0:
		err = ErrNonZeroExit
	case !strings.HasPrefix(first, "http"):
		err = ErrNotURL
	}
	if err != nil {
		rerr := &ResolutionError{
			ExternalID: externalID,
			ExitCode:   res.ExitCode,
			Stderr:     excerpt(scrub(string(res.Stderr), credentialPath)),
			Output:     excerpt(scrub(first, credentialPath)),
			Err:        err,
		}
		r.logger.Warn("resolution failed",
			"video_id", externalID,
			"exit_code", res.ExitCode,
			"stderr", rerr.Stderr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", rerr
	}

	r.logger.Debug("resolved",
		"video_id", externalID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return first, nil
}

// firstLine returns the first line of trimmed output. yt-dlp prints one URL
// per selected format.
func firstLine(out string) string {
	out = strings.TrimSpace(out)
	if i := strings.IndexAny(out, "\r\n"); i >= 0 {
		out = out[:i]
	}
	return strings.TrimSpace(out)
}

// scrub hides the cookie jar location in tool output that ends up in errors.
func scrub(out, credentialPath string) string {
	if credentialPath == "" {
		return out
	}
	return strings.ReplaceAll(out, credentialPath, "[cookies]")
}
