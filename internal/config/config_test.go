package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenExpiry)
	assert.Equal(t, 10*24*time.Hour, cfg.RefreshTokenExpiry)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_EXPIRY", "45m")
	assert.Equal(t, 45*time.Minute, getEnvDuration("TEST_EXPIRY", time.Hour))

	// bare integers mean days
	t.Setenv("TEST_EXPIRY", "10")
	assert.Equal(t, 240*time.Hour, getEnvDuration("TEST_EXPIRY", time.Hour))

	t.Setenv("TEST_EXPIRY", "garbage")
	assert.Equal(t, time.Hour, getEnvDuration("TEST_EXPIRY", time.Hour))

	assert.Equal(t, time.Hour, getEnvDuration("TEST_EXPIRY_UNSET", time.Hour))
}

func TestValidate(t *testing.T) {
	cfg := Config{AccessTokenSecret: "a", RefreshTokenSecret: "b"}
	assert.NoError(t, cfg.Validate())

	cfg.RefreshTokenSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.RefreshTokenSecret = "a"
	assert.Error(t, cfg.Validate(), "identical secrets must be rejected")

	cfg.AccessTokenSecret = ""
	assert.Error(t, cfg.Validate())
}
