package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr          string
		RatePerMinute int `mapstructure:"rate_per_minute"`
	} `mapstructure:"http"`

	Postgres struct {
		DSN        string
		Migrations string
	} `mapstructure:"postgres"`

	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		Prefix   string
	} `mapstructure:"redis"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Tracing struct {
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"tracing"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
		DigestHour  int   `mapstructure:"digest_hour"`
	} `mapstructure:"telegram"`

	Lockout struct {
		MaxAttempts int           `mapstructure:"max_attempts"`
		Cooldown    time.Duration `mapstructure:"cooldown"`
	} `mapstructure:"lockout"`
}

// Location resolves App.Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.App.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_per_minute", 600)
	v.SetDefault("postgres.migrations", "migrations")
	v.SetDefault("redis.prefix", "clubdesk")
	v.SetDefault("telegram.digest_hour", 9)
	v.SetDefault("lockout.max_attempts", 5)
	v.SetDefault("lockout.cooldown", "15m")
}

// Load reads the YAML file at path. Values can be overridden with APP_*
// variables (APP_POSTGRES_DSN, ...), which may also come from a .env file.
func Load(path string) (Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
