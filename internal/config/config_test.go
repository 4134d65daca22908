package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000

[resolver]
strategy = "ytdlp"
binary = "/usr/local/bin/yt-dlp"
platform_url = "https://www.youtube.com/"
identity = "user_agent"
user_agent = "TestAgent/1.0"
js_runtime = "deno"

[credentials]
file_path = "/run/secrets/cookies.txt"
env_var = "COOKIES_B64"

[upstream]
timeout_seconds = 60

[catalog]
db_path = "/var/lib/reelstream/catalog.db"
default_limit = 10
max_limit = 50

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Resolver.Binary != "/usr/local/bin/yt-dlp" {
		t.Errorf("Resolver.Binary = %q, want %q", cfg.Resolver.Binary, "/usr/local/bin/yt-dlp")
	}
	if cfg.Resolver.PlatformURL != "https://www.youtube.com" {
		t.Errorf("Resolver.PlatformURL = %q, want trailing slash trimmed", cfg.Resolver.PlatformURL)
	}
	if cfg.Resolver.Identity != IdentityUserAgent {
		t.Errorf("Resolver.Identity = %q, want %q", cfg.Resolver.Identity, IdentityUserAgent)
	}
	if cfg.Resolver.UserAgent != "TestAgent/1.0" {
		t.Errorf("Resolver.UserAgent = %q, want %q", cfg.Resolver.UserAgent, "TestAgent/1.0")
	}
	if cfg.Credentials.FilePath != "/run/secrets/cookies.txt" {
		t.Errorf("Credentials.FilePath = %q", cfg.Credentials.FilePath)
	}
	if cfg.Credentials.EnvVar != "COOKIES_B64" {
		t.Errorf("Credentials.EnvVar = %q, want %q", cfg.Credentials.EnvVar, "COOKIES_B64")
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Catalog.DefaultLimit != 10 || cfg.Catalog.MaxLimit != 50 {
		t.Errorf("Catalog limits = %d/%d, want 10/50", cfg.Catalog.DefaultLimit, cfg.Catalog.MaxLimit)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "# empty\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Server.Host", cfg.Server.Host, "0.0.0.0"},
		{"Server.Port", cfg.Server.Port, 8000},
		{"Resolver.Strategy", cfg.Resolver.Strategy, StrategyYTDLP},
		{"Resolver.Binary", cfg.Resolver.Binary, "yt-dlp"},
		{"Resolver.PlatformURL", cfg.Resolver.PlatformURL, "https://www.youtube.com"},
		{"Resolver.Format", cfg.Resolver.Format, "b"},
		{"Resolver.JSRuntime", cfg.Resolver.JSRuntime, "node"},
		{"Resolver.Identity", cfg.Resolver.Identity, IdentityIPv4},
		{"Resolver.UserAgent", cfg.Resolver.UserAgent, DefaultUserAgent},
		{"Resolver.Presign.KeyTemplate", cfg.Resolver.Presign.KeyTemplate, "{id}"},
		{"Resolver.Presign.ExpirySeconds", cfg.Resolver.Presign.ExpirySeconds, 3600},
		{"Credentials.EnvVar", cfg.Credentials.EnvVar, "YOUTUBE_COOKIES"},
		{"Credentials.MaterializePath", cfg.Credentials.MaterializePath, filepath.Join(os.TempDir(), "youtube_cookies.txt")},
		{"Upstream.TimeoutSeconds", cfg.Upstream.TimeoutSeconds, 0},
		{"Upstream.DialTimeoutSeconds", cfg.Upstream.DialTimeoutSeconds, 30},
		{"Catalog.DefaultLimit", cfg.Catalog.DefaultLimit, 20},
		{"Catalog.MaxLimit", cfg.Catalog.MaxLimit, 100},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "json"},
		{"Metrics.Path", cfg.Metrics.Path, "/metrics"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("default %s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[resolver]
strategy = "ytdlp"

[catalog]
db_path = "from-toml.db"

[log]
level = "info"
`)

	cli := &CLI{
		Config:   path,
		Host:     "127.0.0.1",
		Port:     3000,
		DBPath:   "from-cli.db",
		LogLevel: "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Catalog.DBPath != "from-cli.db" {
		t.Errorf("Catalog.DBPath = %q, want %q (CLI override)", cfg.Catalog.DBPath, "from-cli.db")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_CLIStrategyOverrideIsValidated(t *testing.T) {
	path := writeConfig(t, "# empty\n")

	_, err := Load(&CLI{Config: path, Strategy: "presign"})
	if err == nil {
		t.Fatal("Load() expected error for presign strategy without bucket settings, got nil")
	}
	if !strings.Contains(err.Error(), "presign") {
		t.Errorf("error = %q, want mention of presign", err)
	}
}

func TestLoad_PresignStrategy(t *testing.T) {
	path := writeConfig(t, `
[resolver]
strategy = "presign"

[resolver.presign]
endpoint = "acct.r2.cloudflarestorage.com"
bucket = "drama-box"
access_key_id = "AKID"
secret_access_key = "SECRET"
key_template = "videos/{id}.mp4"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Resolver.Strategy != StrategyPresign {
		t.Errorf("Resolver.Strategy = %q, want %q", cfg.Resolver.Strategy, StrategyPresign)
	}
	if cfg.Resolver.Presign.Region != "auto" {
		t.Errorf("Presign.Region = %q, want %q", cfg.Resolver.Presign.Region, "auto")
	}
	if cfg.Resolver.Presign.ExpirySeconds != 3600 {
		t.Errorf("Presign.ExpirySeconds = %d, want 3600", cfg.Resolver.Presign.ExpirySeconds)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "unknown strategy",
			data:    "[resolver]\nstrategy = \"magic\"\n",
			wantErr: "resolver.strategy",
		},
		{
			name:    "unknown identity",
			data:    "[resolver]\nidentity = \"tor\"\n",
			wantErr: "resolver.identity",
		},
		{
			name:    "non-http platform url",
			data:    "[resolver]\nplatform_url = \"ftp://example.com\"\n",
			wantErr: "platform_url",
		},
		{
			name: "presign endpoint with scheme",
			data: `
[resolver]
strategy = "presign"
[resolver.presign]
endpoint = "https://acct.r2.cloudflarestorage.com"
bucket = "b"
access_key_id = "a"
secret_access_key = "s"
`,
			wantErr: "without scheme",
		},
		{
			name: "presign key template without placeholder",
			data: `
[resolver]
strategy = "presign"
[resolver.presign]
endpoint = "acct.r2.cloudflarestorage.com"
bucket = "b"
access_key_id = "a"
secret_access_key = "s"
key_template = "static.mp4"
`,
			wantErr: "{id}",
		},
		{
			name:    "negative port",
			data:    "[server]\nport = -1\n",
			wantErr: "server.port",
		},
		{
			name:    "negative timeout",
			data:    "[upstream]\ntimeout_seconds = -5\n",
			wantErr: "timeout_seconds",
		},
		{
			name:    "default limit above max",
			data:    "[catalog]\ndefault_limit = 200\nmax_limit = 100\n",
			wantErr: "exceeds",
		},
		{
			name:    "invalid log level",
			data:    "[log]\nlevel = \"verbose\"\n",
			wantErr: "log.level",
		},
		{
			name:    "invalid log format",
			data:    "[log]\nformat = \"yaml\"\n",
			wantErr: "log.format",
		},
		{
			name:    "rate limit without rps",
			data:    "[server.rate_limit]\nenabled = true\nrequests_per_second = 0\n",
			wantErr: "requests_per_second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.data)
			_, err := Load(cliWithPath(path))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	path1 := writeConfig(t, "# first\n")
	path2 := writeConfig(t, "# second\n")

	if got := findConfigInPaths([]string{"/nonexistent/a.toml", path1, path2}); got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first existing %q", got, path1)
	}
	if got := findConfigInPaths([]string{"/nonexistent/a.toml"}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestLoad_MetricsPathConflictsWithRoute(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"stream exact", "/stream"},
		{"videos sub", "/videos/metrics"},
		{"healthz", "/healthz"},
		{"proxy/status", "/proxy/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, `
[metrics]
enabled = true
path = "`+tt.path+`"
`)

			_, err := Load(cliWithPath(cfgPath))
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q conflicting with route, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), "conflicts") {
				t.Errorf("error = %q, want mention of conflict", err)
			}
		})
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = false
path = "bad-no-slash"
`)

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
