// Package identity keeps the resolver and the upstream fetch on the same
// network identity. Signed media URLs are bound to the identity that
// requested them; a different User-Agent or IP family gets a 403.
package identity

import (
	"fmt"
	"net/http"
	"strings"
)

// Mode selects how the network identity is pinned.
type Mode string

const (
	ModeUserAgent Mode = "user_agent"
	ModeIPv4      Mode = "ipv4"
	ModeIPv6      Mode = "ipv6"
)

// Identity is the process-wide, read-only identity shared by resolver and fetcher.
type Identity struct {
	Mode      Mode
	UserAgent string
}

// New validates mode and returns an Identity.
func New(mode, userAgent string) (Identity, error) {
	m := Mode(strings.ToLower(mode))
	switch m {
	case ModeUserAgent:
		if userAgent == "" {
			return Identity{}, fmt.Errorf("identity: user_agent mode requires a user agent")
		}
	case ModeIPv4, ModeIPv6:
	default:
		return Identity{}, fmt.Errorf("identity: unknown mode %q", mode)
	}
	return Identity{Mode: m, UserAgent: userAgent}, nil
}

// ResolverArgs returns the yt-dlp flags that pin this identity.
func (id Identity) ResolverArgs() []string {
	switch id.Mode {
	case ModeUserAgent:
		return []string{"--user-agent", id.UserAgent}
	case ModeIPv6:
		return []string{"--force-ipv6"}
	default:
		return []string{"--force-ipv4"}
	}
}

// Apply sets the identity headers on an outbound upstream request.
func (id Identity) Apply(h http.Header) {
	if id.Mode == ModeUserAgent {
		h.Set("User-Agent", id.UserAgent)
	}
}

// DialNetwork returns the network name for net.Dialer.DialContext.
func (id Identity) DialNetwork() string {
	switch id.Mode {
	case ModeIPv4:
		return "tcp4"
	case ModeIPv6:
		return "tcp6"
	default:
		return "tcp"
	}
}
