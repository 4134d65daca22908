// Package credentials supplies the optional cookie jar handed to the resolver.
package credentials

import (
	"encoding/base64"
	"log/slog"
	"os"
	"strings"

	"github.com/google/renameio/v2"

	"reelstream/internal/config"
)

// cookieJarHeaders are the first-line markers of a Netscape cookie file.
var cookieJarHeaders = []string{
	"# Netscape HTTP Cookie File",
	"# HTTP Cookie File",
}

// Provisioner resolves the cookie source into a filesystem path.
// It holds only read-only configuration and is safe for concurrent use.
type Provisioner struct {
	filePath        string
	envVar          string
	materializePath string
	getenv          func(string) string
	logger          *slog.Logger
}

// NewProvisioner creates a Provisioner reading the process environment.
func NewProvisioner(cfg *config.Config, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		filePath:        cfg.Credentials.FilePath,
		envVar:          cfg.Credentials.EnvVar,
		materializePath: cfg.Credentials.MaterializePath,
		getenv:          os.Getenv,
		logger:          logger.With("component", "credentials"),
	}
}

// Ensure returns the cookie file path to pass to the resolver, or ok=false when
// no credentials are configured or they could not be written. It never fails
// the request.
//
// A mounted file wins and is used untouched. Otherwise the environment blob is
// normalized and rewritten to the materialize path on every call.
func (p *Provisioner) Ensure() (path string, ok bool) {
	if p.filePath != "" {
		if info, err := os.Stat(p.filePath); err == nil && info.Mode().IsRegular() {
			return p.filePath, true
		}
	}

	if p.envVar == "" {
		return "", false
	}
	blob := p.getenv(p.envVar)
	if blob == "" {
		return "", false
	}

	// renameio writes to a temp file and renames it into place, so concurrent
	// requests never observe a half-written jar.
	if err := renameio.WriteFile(p.materializePath, []byte(normalize(blob)), 0o600); err != nil {
		p.logger.Error("write cookies file", "err", err, "path", p.materializePath)
		return "", false
	}
	return p.materializePath, true
}

// normalize returns the cookie jar text for a raw environment value, which may
// be plaintext or base64. Undecodable input is passed through unchanged.
func normalize(blob string) string {
	if hasJarHeader(blob) {
		return blob
	}
	decoded, ok := decodeBase64(blob)
	if ok && (hasJarHeader(decoded) || strings.Contains(decoded, "\t")) {
		return decoded
	}
	return blob
}

func hasJarHeader(s string) bool {
	s = strings.TrimLeft(s, " \r\n\ufeff")
	for _, h := range cookieJarHeaders {
		if strings.HasPrefix(s, h) {
			return true
		}
	}
	return false
}

func decodeBase64(s string) (string, bool) {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(compact); err == nil {
			return string(b), true
		}
	}
	return "", false
}
