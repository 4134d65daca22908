// Package resolver turns an external video identifier into a direct,
// time-limited upstream media URL.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Resolver resolves an external identifier to a playable URL. credentialPath
// is empty when no cookie jar is available.
type Resolver interface {
	Resolve(ctx context.Context, externalID, credentialPath string) (string, error)
}

var (
	// ErrSpawn means the resolver process could not be started.
	ErrSpawn = errors.New("resolver process failed to start")
	// ErrNonZeroExit means the resolver process exited unsuccessfully.
	ErrNonZeroExit = errors.New("resolver exited with non-zero status")
	// ErrNotURL means the resolver output did not start with a URL scheme.
	ErrNotURL = errors.New("resolver output is not a URL")
	// ErrPresign means the object storage URL could not be signed.
	ErrPresign = errors.New("presigned URL generation failed")
)

// maxExcerpt bounds how much subprocess output ends up in error messages.
const maxExcerpt = 256

// ResolutionError describes a failed resolution. Stderr and Output are
// bounded excerpts, safe to log.
type ResolutionError struct {
	ExternalID string
	ExitCode   int // -1 when the process never ran or was killed
	Stderr     string
	Output     string
	Err        error
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolve %q: %v (exit code %d)", e.ExternalID, e.Err, e.ExitCode)
	if e.Output != "" {
		fmt.Fprintf(&b, "; output: %s", e.Output)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, "; stderr: %s", e.Stderr)
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// excerpt trims s and truncates it to maxExcerpt bytes on a rune boundary.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxExcerpt {
		return s
	}
	cut := maxExcerpt
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
