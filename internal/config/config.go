// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/reelstream/config.toml",
	"configs/config.toml",
}

// Resolver strategies. They are mutually exclusive per deployment.
const (
	StrategyYTDLP   = "ytdlp"
	StrategyPresign = "presign"
)

// Network identity modes shared by the resolver and the upstream fetch.
const (
	IdentityUserAgent = "user_agent"
	IdentityIPv4      = "ipv4"
	IdentityIPv6      = "ipv6"
)

// DefaultUserAgent is the browser identity sent by both yt-dlp and the fetcher.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Strategy string `kong:"help='Resolver strategy: ytdlp|presign (overrides config).',env='RESOLVER_STRATEGY'"`
	DBPath   string `kong:"help='Catalog SQLite database path (overrides config).',env='CATALOG_DB'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Resolver    ResolverConfig    `toml:"resolver"`
	Credentials CredentialsConfig `toml:"credentials"`
	Upstream    UpstreamConfig    `toml:"upstream"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Log         LogConfig         `toml:"log"`
	Metrics     MetricsConfig     `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string          `toml:"host"`
	Port      int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ResolverConfig selects and configures the id -> media URL resolution.
type ResolverConfig struct {
	Strategy    string        `toml:"strategy"`
	Binary      string        `toml:"binary"`
	PlatformURL string        `toml:"platform_url"`
	Format      string        `toml:"format"`
	JSRuntime   string        `toml:"js_runtime"`
	Identity    string        `toml:"identity"`
	UserAgent   string        `toml:"user_agent"`
	Presign     PresignConfig `toml:"presign"`
}

// PresignConfig holds S3-compatible object storage settings for the presign strategy.
type PresignConfig struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	KeyTemplate     string `toml:"key_template"`
	ExpirySeconds   int    `toml:"expiry_seconds"`
	Insecure        bool   `toml:"insecure"`
}

// CredentialsConfig points at the optional cookie jar for the resolver.
type CredentialsConfig struct {
	FilePath        string `toml:"file_path"`
	EnvVar          string `toml:"env_var"`
	MaterializePath string `toml:"materialize_path"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds     int `toml:"timeout_seconds"` // 0 after defaults means no overall timeout
	DialTimeoutSeconds int `toml:"dial_timeout_seconds"`
}

// CatalogConfig holds listing database settings.
type CatalogConfig struct {
	DBPath       string `toml:"db_path"`
	DefaultLimit int    `toml:"default_limit"`
	MaxLimit     int    `toml:"max_limit"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/reelstream/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Strategy != "" {
		c.Resolver.Strategy = cli.Strategy
	}
	if cli.DBPath != "" {
		c.Catalog.DBPath = cli.DBPath
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Resolver.Strategy) {
	case StrategyYTDLP, "":
		if c.Resolver.PlatformURL != "" {
			u, err := url.Parse(c.Resolver.PlatformURL)
			if err != nil {
				return fmt.Errorf("resolver.platform_url is not a valid URL: %w", err)
			}
			if u.Scheme != "https" && u.Scheme != "http" {
				return fmt.Errorf("resolver.platform_url must be http(s); got %q", c.Resolver.PlatformURL)
			}
		}
	case StrategyPresign:
		p := c.Resolver.Presign
		if p.Endpoint == "" || p.Bucket == "" {
			return fmt.Errorf("resolver.presign.endpoint and resolver.presign.bucket are required for the presign strategy")
		}
		if p.AccessKeyID == "" || p.SecretAccessKey == "" {
			return fmt.Errorf("resolver.presign.access_key_id and resolver.presign.secret_access_key are required for the presign strategy")
		}
		if strings.Contains(p.Endpoint, "://") {
			return fmt.Errorf("resolver.presign.endpoint must be host[:port] without scheme; got %q", p.Endpoint)
		}
		if p.KeyTemplate != "" && !strings.Contains(p.KeyTemplate, "{id}") {
			return fmt.Errorf("resolver.presign.key_template must contain {id}; got %q", p.KeyTemplate)
		}
		if p.ExpirySeconds < 0 || p.ExpirySeconds > 7*24*3600 {
			return fmt.Errorf("resolver.presign.expiry_seconds must be 0–604800; got %d", p.ExpirySeconds)
		}
	default:
		return fmt.Errorf("resolver.strategy must be one of: ytdlp, presign; got %q", c.Resolver.Strategy)
	}

	switch strings.ToLower(c.Resolver.Identity) {
	case IdentityUserAgent, IdentityIPv4, IdentityIPv6, "":
		// valid
	default:
		return fmt.Errorf("resolver.identity must be one of: user_agent, ipv4, ipv6; got %q", c.Resolver.Identity)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.DialTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.dial_timeout_seconds must be non-negative; got %d", c.Upstream.DialTimeoutSeconds)
	}
	if c.Catalog.DefaultLimit < 0 || c.Catalog.MaxLimit < 0 {
		return fmt.Errorf("catalog limits must be non-negative")
	}
	if c.Catalog.MaxLimit > 0 && c.Catalog.DefaultLimit > c.Catalog.MaxLimit {
		return fmt.Errorf("catalog.default_limit (%d) exceeds catalog.max_limit (%d)", c.Catalog.DefaultLimit, c.Catalog.MaxLimit)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/stream", "/videos", "/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}

	c.Resolver.Strategy = strings.ToLower(c.Resolver.Strategy)
	if c.Resolver.Strategy == "" {
		c.Resolver.Strategy = StrategyYTDLP
	}
	if c.Resolver.Binary == "" {
		c.Resolver.Binary = "yt-dlp"
	}
	if c.Resolver.PlatformURL == "" {
		c.Resolver.PlatformURL = "https://www.youtube.com"
	}
	c.Resolver.PlatformURL = strings.TrimRight(c.Resolver.PlatformURL, "/")
	if c.Resolver.Format == "" {
		c.Resolver.Format = "b"
	}
	if c.Resolver.JSRuntime == "" {
		c.Resolver.JSRuntime = "node"
	}
	c.Resolver.Identity = strings.ToLower(c.Resolver.Identity)
	if c.Resolver.Identity == "" {
		c.Resolver.Identity = IdentityIPv4
	}
	if c.Resolver.UserAgent == "" {
		c.Resolver.UserAgent = DefaultUserAgent
	}
	if c.Resolver.Presign.Region == "" {
		c.Resolver.Presign.Region = "auto"
	}
	if c.Resolver.Presign.KeyTemplate == "" {
		c.Resolver.Presign.KeyTemplate = "{id}"
	}
	if c.Resolver.Presign.ExpirySeconds == 0 {
		c.Resolver.Presign.ExpirySeconds = 3600
	}

	if c.Credentials.EnvVar == "" {
		c.Credentials.EnvVar = "YOUTUBE_COOKIES"
	}
	if c.Credentials.MaterializePath == "" {
		c.Credentials.MaterializePath = filepath.Join(os.TempDir(), "youtube_cookies.txt")
	}

	if c.Upstream.DialTimeoutSeconds == 0 {
		c.Upstream.DialTimeoutSeconds = 30
	}

	if c.Catalog.DBPath == "" {
		c.Catalog.DBPath = "reelstream.db"
	}
	if c.Catalog.MaxLimit == 0 {
		c.Catalog.MaxLimit = 100
	}
	if c.Catalog.DefaultLimit == 0 {
		c.Catalog.DefaultLimit = min(20, c.Catalog.MaxLimit)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
// The file may carry presign secrets.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
