// Package config loads the backend configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all backend settings.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`

	Log struct {
		Development bool `mapstructure:"development"`
	} `mapstructure:"log"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Redis struct {
		Addr     string `mapstructure:"addr"` // empty = in-memory token cache
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`

	Mpesa struct {
		BaseURL        string `mapstructure:"base_url"`
		ConsumerKey    string `mapstructure:"consumer_key"`
		ConsumerSecret string `mapstructure:"consumer_secret"`
		ShortCode      string `mapstructure:"short_code"`
		Passkey        string `mapstructure:"passkey"`
		CallbackURL    string `mapstructure:"callback_url"`
	} `mapstructure:"mpesa"`

	Router struct {
		Address    string `mapstructure:"address"` // empty = noop gateway
		Port       int    `mapstructure:"port"`
		Username   string `mapstructure:"username"`
		Password   string `mapstructure:"password"`
		PrivateKey string `mapstructure:"private_key"`
	} `mapstructure:"router"`

	Scheduler struct {
		MaxAttempts   int           `mapstructure:"max_attempts"`
		RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"scheduler"`

	Auth struct {
		KeysDir          string `mapstructure:"keys_dir"`
		Issuer           string `mapstructure:"issuer"`
		OperatorPassword string `mapstructure:"operator_password"`
		TokenTTLMinutes  int    `mapstructure:"token_ttl_minutes"`
	} `mapstructure:"auth"`
}

// Load reads config.yaml from the given directory (or ./config) with
// SOKONET_* environment overrides.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SOKONET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine: defaults plus env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.development", false)
	v.SetDefault("db.path", "./sokonet.db")
	v.SetDefault("mpesa.base_url", "https://sandbox.safaricom.co.ke")
	v.SetDefault("router.port", 22)
	v.SetDefault("router.username", "admin")
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.retry_backoff", 2*time.Second)
	v.SetDefault("scheduler.sweep_interval", time.Minute)
	v.SetDefault("auth.keys_dir", "./keys")
	v.SetDefault("auth.issuer", "sokonet-hotspot")
	v.SetDefault("auth.token_ttl_minutes", 720)
}

// Validate checks that the settings required at runtime are present.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: invalid server port %d", c.Server.Port)
	}
	if c.DB.Path == "" {
		return fmt.Errorf("config error: db path is required")
	}
	if c.Mpesa.ConsumerKey == "" || c.Mpesa.ConsumerSecret == "" {
		return fmt.Errorf("config error: mpesa consumer key and secret are required")
	}
	if c.Mpesa.ShortCode == "" || c.Mpesa.Passkey == "" {
		return fmt.Errorf("config error: mpesa short code and passkey are required")
	}
	if c.Mpesa.CallbackURL == "" {
		return fmt.Errorf("config error: mpesa callback URL is required")
	}
	if c.Auth.OperatorPassword == "" {
		return fmt.Errorf("config error: operator password is required")
	}
	return nil
}

// TokenTTL returns the operator token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}
