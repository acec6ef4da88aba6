package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, OversellAllow, cfg.OversellPolicy)
	assert.True(t, cfg.AllowOversell())
	assert.Equal(t, TieBreakLowestCost, cfg.JumpRingTieBrk)
	assert.True(t, cfg.TaxRate().IsZero())
	assert.Equal(t, "pos_db", cfg.Postgres().DBName)
	assert.Equal(t, "localhost:6379", cfg.Redis().Addr())
}

func TestLoad_BlockPolicy(t *testing.T) {
	t.Setenv("OVERSELL_POLICY", "block")
	t.Setenv("DEFAULT_TAX_RATE", "0.0825")

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.AllowOversell())
	assert.True(t, decimal.RequireFromString("0.0825").Equal(cfg.TaxRate()))
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"port", "HTTP_PORT", "0", "invalid HTTP port"},
		{"policy", "OVERSELL_POLICY", "warn", "OVERSELL_POLICY"},
		{"tie break", "JUMP_RING_TIE_BREAK", "random", "JUMP_RING_TIE_BREAK"},
		{"tax not decimal", "DEFAULT_TAX_RATE", "eight", "DEFAULT_TAX_RATE must be a decimal"},
		{"fee too high", "PLATFORM_FEE_RATE", "1.5", "PLATFORM_FEE_RATE must be between 0 and 1"},
		{"session ttl", "SESSION_TTL_HOURS", "0", "SESSION_TTL_HOURS"},
		{"sample rate", "OTEL_SAMPLE_RATE", "2", "OTEL_SAMPLE_RATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
