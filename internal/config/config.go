package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application configuration assembled from env and an optional
// YAML file. Env keys use the TALLY_ prefix with underscores, e.g.
// TALLY_SERVER_ADDR, TALLY_PG_DSN, TALLY_AUTH_SECRET.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	PG struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"pg"`

	Auth struct {
		Secret       string        `mapstructure:"secret"`
		TokenTTL     time.Duration `mapstructure:"token_ttl"`
		CacheTTL     time.Duration `mapstructure:"cache_ttl"`
		CookieSecure bool          `mapstructure:"cookie_secure"`
	} `mapstructure:"auth"`
}

// Load reads configuration from env and an optional config file with defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("pg.dsn", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.cache_ttl", 300*time.Second)
	v.SetDefault("auth.cookie_secure", false)

	if cfgFile := os.Getenv("TALLY_CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("tallybooks")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tallybooks")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("config read error: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if strings.TrimSpace(cfg.Auth.Secret) == "" {
		return nil, errors.New("auth secret is required (TALLY_AUTH_SECRET)")
	}
	return &cfg, nil
}
