package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "")
	setEnv(t, "API_KEY_PEPPER", "")
	setEnv(t, "API_KEY_PEPPER_PATH", "")
	setEnv(t, "PRICE_POLL_INTERVAL", "")
	setEnv(t, "RATE_LIMIT_RPM", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPepperPath, cfg.PepperPath)
	assert.Equal(t, DefaultPollInterval, cfg.PricePollInterval)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPM)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "API_KEY_PEPPER", "super-secret")
	setEnv(t, "PRICE_POLL_INTERVAL", "30s")
	setEnv(t, "ADMIN_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "super-secret", cfg.Pepper)
	assert.Equal(t, 30*time.Second, cfg.PricePollInterval)
	assert.Equal(t, "tok", cfg.AdminToken)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid config",
			config: Config{
				PepperPath:        DefaultPepperPath,
				PricePollInterval: time.Minute,
				RateLimitRPM:      100,
			},
			wantErr: "",
		},
		{
			name: "poll interval too small",
			config: Config{
				PepperPath:        DefaultPepperPath,
				PricePollInterval: 100 * time.Millisecond,
				RateLimitRPM:      100,
			},
			wantErr: "PRICE_POLL_INTERVAL",
		},
		{
			name: "rate limit not positive",
			config: Config{
				PepperPath:        DefaultPepperPath,
				PricePollInterval: time.Minute,
				RateLimitRPM:      0,
			},
			wantErr: "RATE_LIMIT_RPM",
		},
		{
			name: "no pepper source at all",
			config: Config{
				PricePollInterval: time.Minute,
				RateLimitRPM:      100,
			},
			wantErr: "API_KEY_PEPPER_PATH",
		},
		{
			name: "explicit pepper needs no path",
			config: Config{
				Pepper:            "s",
				PricePollInterval: time.Minute,
				RateLimitRPM:      100,
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "45s")
	setEnv(t, "TEST_BAD_DUR", "soon")

	assert.Equal(t, 45*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("NONEXISTENT_VAR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_BAD_DUR", time.Minute)) // Falls back on parse error
}
