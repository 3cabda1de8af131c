// Package config loads server settings from NETRA_MCP_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Transports accepted by Config.Transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds every tunable of the server. Defaults live in the struct tags.
type Config struct {
	Transport  string `env:"NETRA_MCP_TRANSPORT,default=stdio"`
	Addr       string `env:"NETRA_MCP_ADDR,default=:8080"`
	BasePath   string `env:"NETRA_MCP_BASE_PATH,default=/mcp"`
	PublicURL  string `env:"NETRA_MCP_PUBLIC_URL"`
	ServerName string `env:"NETRA_MCP_SERVER_NAME,default=netra-mcp-server"`
	Version    string `env:"NETRA_MCP_SERVER_VERSION,default=1.0.0"`

	SessionTTL         time.Duration `env:"NETRA_MCP_SESSION_TTL,default=1h"`
	SweepInterval      time.Duration `env:"NETRA_MCP_SWEEP_INTERVAL,default=5m"`
	RateLimitPerMinute int           `env:"NETRA_MCP_RATE_LIMIT,default=0"`

	EnableTools     bool          `env:"NETRA_MCP_ENABLE_TOOLS,default=true"`
	EnableResources bool          `env:"NETRA_MCP_ENABLE_RESOURCES,default=true"`
	EnablePrompts   bool          `env:"NETRA_MCP_ENABLE_PROMPTS,default=true"`
	EnableSampling  bool          `env:"NETRA_MCP_ENABLE_SAMPLING,default=true"`
	ToolTimeout     time.Duration `env:"NETRA_MCP_TOOL_TIMEOUT,default=0s"`
	HistoryCapacity int           `env:"NETRA_MCP_HISTORY_CAPACITY,default=1000"`
	PromptDir       string        `env:"NETRA_MCP_PROMPT_DIR"`

	RedisAddr   string `env:"NETRA_MCP_REDIS_ADDR"`
	RedisPrefix string `env:"NETRA_MCP_REDIS_PREFIX,default=netra:mcp:"`

	JWTSecret   string `env:"NETRA_MCP_JWT_SECRET"`
	JWTIssuer   string `env:"NETRA_MCP_JWT_ISSUER"`
	JWTAudience string `env:"NETRA_MCP_JWT_AUDIENCE"`
	JWKSURL     string `env:"NETRA_MCP_JWKS_URL"`
	OIDCIssuer  string `env:"NETRA_MCP_OIDC_ISSUER"`
	APIKeys     string `env:"NETRA_MCP_API_KEYS"`
	RequireAuth bool   `env:"NETRA_MCP_REQUIRE_AUTH,default=false"`

	AuthCacheSize int           `env:"NETRA_MCP_AUTH_CACHE_SIZE,default=1024"`
	AuthCacheTTL  time.Duration `env:"NETRA_MCP_AUTH_CACHE_TTL,default=30s"`

	OpenAIKey     string `env:"NETRA_MCP_OPENAI_API_KEY"`
	OpenAIModel   string `env:"NETRA_MCP_OPENAI_MODEL,default=gpt-4o-mini"`
	OpenAIBaseURL string `env:"NETRA_MCP_OPENAI_BASE_URL"`

	LogLevel  string `env:"NETRA_MCP_LOG_LEVEL,default=info"`
	LogFormat string `env:"NETRA_MCP_LOG_FORMAT,default=json"`

	Heartbeat   time.Duration `env:"NETRA_MCP_HEARTBEAT,default=30s"`
	CORSOrigins string        `env:"NETRA_MCP_CORS_ORIGINS,default=*"`
	WSRate      float64       `env:"NETRA_MCP_WS_RATE,default=20"`
	WSBurst     int           `env:"NETRA_MCP_WS_BURST,default=40"`
}

// Load decodes the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: session ttl must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("config: rate limit must not be negative")
	}
	if c.AuthCacheSize < 0 {
		return errors.New("config: auth cache size must not be negative")
	}
	if c.Heartbeat <= 0 {
		return errors.New("config: heartbeat must be positive")
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("config: base path %q must start with /", c.BasePath)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return l, nil
}

// Origins splits CORSOrigins on commas.
func (c *Config) Origins() []string {
	return splitList(c.CORSOrigins)
}

// Keys splits APIKeys on commas.
func (c *Config) Keys() []string {
	return splitList(c.APIKeys)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
