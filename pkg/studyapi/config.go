package studyapi

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aceit.app/pkg/coalesce"
	"aceit.app/pkg/ttlcache"
)

// Config holds runtime configuration for a Client.
type Config struct {
	BaseURL        string        `json:"base_url"`         // Study-assistant API root
	CanvasURL      string        `json:"canvas_url"`       // LMS root, for the OAuth authorize URL
	ClientID       string        `json:"client_id"`        // LMS OAuth client ID
	RedirectURI    string        `json:"redirect_uri"`     // OAuth redirect target
	LocalMode      bool          `json:"local_mode"`       // Sent as the Islocaltesting header on login
	CacheTTL       time.Duration `json:"cache_ttl"`        // Read cache expiry
	QuietPeriod    time.Duration `json:"quiet_period"`     // Analytics debounce delay
	MaxUpstreamRPS int           `json:"max_upstream_rps"` // Request rate limit towards the API
	RequestTimeout time.Duration `json:"request_timeout"`  // Per-request transport timeout
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:3000",
		CacheTTL:       ttlcache.DefaultTTL,
		QuietPeriod:    coalesce.DefaultQuietPeriod,
		MaxUpstreamRPS: 20,
		RequestTimeout: 30 * time.Second,
	}
}

// Environment variables read by LoadConfig.
const (
	EnvBaseURL        = "STUDY_API_URL"
	EnvCanvasURL      = "CANVAS_URL"
	EnvClientID       = "CANVAS_CLIENT_ID"
	EnvRedirectURI    = "CANVAS_REDIRECT_URI"
	EnvLocalMode      = "LOCAL_MODE"
	EnvMaxUpstreamRPS = "UPSTREAM_MAX_RPS"
	EnvRequestTimeout = "UPSTREAM_TIMEOUT"
)

// LoadConfig starts from DefaultConfig, loads a .env file when present and applies
// environment overrides.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvCanvasURL); v != "" {
		cfg.CanvasURL = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv(EnvRedirectURI); v != "" {
		cfg.RedirectURI = v
	}
	if v := os.Getenv(EnvLocalMode); v != "" {
		local, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvLocalMode, err)
		}
		cfg.LocalMode = local
	}
	if v := os.Getenv(EnvMaxUpstreamRPS); v != "" {
		rps, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvMaxUpstreamRPS, err)
		}
		cfg.MaxUpstreamRPS = rps
	}
	if v := os.Getenv(EnvRequestTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvRequestTimeout, err)
		}
		cfg.RequestTimeout = d
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL must be http(s): %q", c.BaseURL)
	}
	if c.MaxUpstreamRPS <= 0 {
		return fmt.Errorf("max upstream RPS must be positive, got %d", c.MaxUpstreamRPS)
	}
	return nil
}
