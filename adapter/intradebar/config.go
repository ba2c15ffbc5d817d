package intradebar

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the adapter's bootstrap configuration, loaded by cmd/optionxd via
// viper the same way the teacher's daemon reads SAXO_* environment variables
// in adapter/oauth.go's LoadSaxoEnvironmentConfig, generalized to a
// file-or-env-backed viper.Viper instead of raw os.Getenv calls.
type Config struct {
	Environment string `mapstructure:"environment"` // "demo" or "live"

	BaseURL      string `mapstructure:"base_url"`
	WebSocketURL string `mapstructure:"websocket_url"`
	AuthURL      string `mapstructure:"auth_url"`
	TokenURL     string `mapstructure:"token_url"`

	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`

	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	RequestBurst      int           `mapstructure:"request_burst"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	RetryMax          int           `mapstructure:"retry_max"`

	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	BaseReconnectDelay   time.Duration `mapstructure:"base_reconnect_delay"`
	MaxReconnectDelay    time.Duration `mapstructure:"max_reconnect_delay"`

	AccountPollInterval time.Duration `mapstructure:"account_poll_interval"`
	SettlePollInterval  time.Duration `mapstructure:"settle_poll_interval"`
}

// defaultConfig mirrors the teacher's "default to SIM/demo for safety"
// posture (adapter/oauth.go, adapter/config.go's TestConfig).
func defaultConfig() Config {
	return Config{
		Environment:          "demo",
		BaseURL:              "https://api.intradebar.demo/v1",
		WebSocketURL:         "wss://stream.intradebar.demo/v1/ws",
		AuthURL:              "https://auth.intradebar.demo/oauth2/authorize",
		TokenURL:             "https://auth.intradebar.demo/oauth2/token",
		RequestsPerSecond:    5,
		RequestBurst:         10,
		HTTPTimeout:          10 * time.Second,
		RetryMax:             4,
		MaxReconnectAttempts: 10,
		BaseReconnectDelay:   2 * time.Second,
		MaxReconnectDelay:    5 * time.Minute,
		AccountPollInterval:  30 * time.Second,
		SettlePollInterval:   1 * time.Second,
	}
}

// LoadConfig reads adapter configuration from v, falling back to
// defaultConfig for any key v does not set. v is expected to already have
// its config file/env prefix set up by the caller (cmd/optionxd).
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := defaultConfig()
	if v == nil {
		return cfg, nil
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("intradebar: decode config: %w", err)
	}
	if cfg.Environment == "live" {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return Config{}, fmt.Errorf("intradebar: live environment requires client_id and client_secret")
		}
	}
	return cfg, nil
}
