// Package config loads the engine's environment-driven configuration,
// grounded on the teacher's viper-based config.go but re-keyed to the flat
// uppercase env vars original_source/src/common/constants.rs::Env defines,
// since this engine has one operator-supplied environment, not a nested
// per-strategy YAML document.
package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds every environment-supplied setting the engine needs to run,
// mirroring original_source's Env struct plus the ambient HTTP/metrics
// server ports the teacher's ServerConfig/MonitoringConfig covered.
type Config struct {
	HTTPSURL       string `mapstructure:"https_url"`
	WSSURL         string `mapstructure:"wss_url"`
	BotAddress     string `mapstructure:"bot_address"`
	// BotBytecode is the deployed bytecode of the on-chain sandwich
	// contract (spec §1's "external collaborator"), hex-encoded with an
	// optional 0x prefix. It is only ever deployed into a throwaway
	// simulation fork, never broadcast on-chain.
	BotBytecode    string `mapstructure:"bot_bytecode"`
	PrivateKey     string `mapstructure:"private_key"`
	IdentityKey    string `mapstructure:"identity_key"`
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
	UseAlert       bool   `mapstructure:"use_alert"`
	Debug          bool   `mapstructure:"debug"`

	ServerPort  int `mapstructure:"server_port"`
	MetricsPort int `mapstructure:"metrics_port"`

	CacheDir string `mapstructure:"cache_dir"`
}

// BotAddressHex returns BotAddress parsed as an address, matching
// original_source's `bot_address.parse::<Address>()` call sites.
func (c *Config) BotAddressHex() common.Address {
	return common.HexToAddress(c.BotAddress)
}

// BotBytecodeBytes decodes BotBytecode, tolerating an optional 0x prefix.
// Empty input decodes to nil, which deploys an empty contract in
// simulation — callers should log a warning when that happens.
func (c *Config) BotBytecodeBytes() []byte {
	return common.FromHex(c.BotBytecode)
}

// Load reads configuration from the process environment, matching
// constants.rs::Env::new()'s direct `std::env::var` lookups, with the
// teacher's viper+defaults idiom standing in for the Rust side's
// unwrap-or-empty-string fallback.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	for _, key := range []string{
		"https_url", "wss_url", "bot_address", "bot_bytecode", "private_key",
		"identity_key", "telegram_token", "telegram_chat_id", "use_alert",
		"debug", "server_port", "metrics_port", "cache_dir",
	} {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// envName upper-cases a mapstructure key into its matching env var name,
// e.g. "bot_address" -> "BOT_ADDRESS".
func envName(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// setDefaults sets the non-secret defaults; every secret/endpoint field is
// left empty so an operator must supply it explicitly.
func setDefaults(v *viper.Viper) {
	v.SetDefault("use_alert", false)
	v.SetDefault("debug", false)
	v.SetDefault("server_port", 8080)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("cache_dir", "./cache")
}
