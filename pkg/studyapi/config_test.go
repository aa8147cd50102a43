package studyapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 300*time.Millisecond, cfg.QuietPeriod)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "https://api.aceit.example.edu")
	t.Setenv(EnvCanvasURL, "https://canvas.example.edu")
	t.Setenv(EnvClientID, "client-7")
	t.Setenv(EnvRedirectURI, "https://aceit.example.edu")
	t.Setenv(EnvLocalMode, "true")
	t.Setenv(EnvMaxUpstreamRPS, "5")
	t.Setenv(EnvRequestTimeout, "10s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.aceit.example.edu", cfg.BaseURL)
	assert.Equal(t, "https://canvas.example.edu", cfg.CanvasURL)
	assert.Equal(t, "client-7", cfg.ClientID)
	assert.Equal(t, "https://aceit.example.edu", cfg.RedirectURI)
	assert.True(t, cfg.LocalMode)
	assert.Equal(t, 5, cfg.MaxUpstreamRPS)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"local mode", EnvLocalMode, "maybe"},
		{"rps", EnvMaxUpstreamRPS, "fast"},
		{"timeout", EnvRequestTimeout, "soon"},
		{"base url", EnvBaseURL, "ftp://api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
