package config

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsApplyWithNoEnv(t *testing.T) {
	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.False(t, cfg.UseAlert)
	assert.False(t, cfg.Debug)
}

func TestLoad_ReadsEnvVars(t *testing.T) {
	t.Setenv("HTTPS_URL", "https://example.invalid")
	t.Setenv("BOT_ADDRESS", "0x000000000000000000000000000000000000bb")
	t.Setenv("USE_ALERT", "true")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "https://example.invalid", cfg.HTTPSURL)
	assert.True(t, cfg.UseAlert)
	assert.NotEqual(t, common.Address{}, cfg.BotAddressHex())
}

func TestEnvName_UppercasesKey(t *testing.T) {
	assert.Equal(t, "BOT_ADDRESS", envName("bot_address"))
}
