package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds server and client settings.
type Config struct {
	Port         string
	LogLevel     string `mapstructure:"log_level"`
	ClientOrigin string `mapstructure:"client_origin"`
	Production   bool

	DB        DBConfig
	JWT       JWTConfig
	Sealing   SealingConfig
	Readiness ReadinessConfig
	Sessions  SessionsConfig
	Daily     DailyConfig
	RateLimit RateLimitConfig
	Play      PlayConfig
}

type DBConfig struct {
	Path string
}

// JWTConfig covers identity cookies.
type JWTConfig struct {
	Secret      string
	ExpiresDays int    `mapstructure:"expires_days"`
	CookieName  string `mapstructure:"cookie_name"`
}

// SealingConfig selects the sealing provider.
type SealingConfig struct {
	Mode         string // aead | mock | off
	Secret       string
	Latency      time.Duration
	LoadDelay    time.Duration `mapstructure:"load_delay"`
	Environments []string
	MaxPermit    time.Duration `mapstructure:"max_permit"`
}

type ReadinessConfig struct {
	BootTimeout  time.Duration `mapstructure:"boot_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
}

type SessionsConfig struct {
	Capacity int
}

type DailyConfig struct {
	Salt string
}

// RateLimitConfig is per client; RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// PlayConfig is used by the terminal client.
type PlayConfig struct {
	Identity    string
	Environment string
	Expiry      time.Duration
	Mode        string
}

const devSecret = "dev_secret_change_me"

// Load reads .env, an optional TOML file and TILES_* environment variables.
// PORT, LOG_LEVEL, CLIENT_ORIGIN, JWT_SECRET and NODE_ENV are honoured too.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("port", "5175")
	v.SetDefault("log_level", "info")
	v.SetDefault("client_origin", "http://localhost:5173")
	v.SetDefault("production", false)
	v.SetDefault("db.path", "./data/app.db")
	v.SetDefault("jwt.secret", devSecret)
	v.SetDefault("jwt.expires_days", 14)
	v.SetDefault("jwt.cookie_name", "tiles_token")
	v.SetDefault("sealing.mode", "aead")
	v.SetDefault("sealing.secret", devSecret+"_sealing")
	v.SetDefault("sealing.latency", "0s")
	v.SetDefault("sealing.load_delay", "0s")
	v.SetDefault("sealing.environments", []string{"testnet", "mainnet"})
	v.SetDefault("sealing.max_permit", "24h")
	v.SetDefault("readiness.boot_timeout", "8s")
	v.SetDefault("readiness.poll_interval", "250ms")
	v.SetDefault("readiness.call_timeout", "15s")
	v.SetDefault("sessions.capacity", 10000)
	v.SetDefault("daily.salt", "daily_salt_change_me")
	v.SetDefault("ratelimit.rps", 20.0)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("play.identity", "")
	v.SetDefault("play.environment", "testnet")
	v.SetDefault("play.expiry", "1h")
	v.SetDefault("play.mode", "classic")

	v.SetConfigType("toml")
	if path := os.Getenv("TILES_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("tiles")
	}

	v.SetEnvPrefix("TILES")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, legacy := range map[string]string{
		"port":          "PORT",
		"log_level":     "LOG_LEVEL",
		"client_origin": "CLIENT_ORIGIN",
		"jwt.secret":    "JWT_SECRET",
		"db.path":       "DB_PATH",
	} {
		_ = v.BindEnv(key, "TILES_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy)
	}
	if os.Getenv("NODE_ENV") == "production" {
		v.SetDefault("production", true)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch strings.ToLower(c.Sealing.Mode) {
	case "aead", "mock", "off":
	default:
		return fmt.Errorf("sealing.mode must be aead, mock or off, got %q", c.Sealing.Mode)
	}
	if strings.EqualFold(c.Sealing.Mode, "aead") && len(c.Sealing.Secret) < 16 {
		return errors.New("sealing.secret must be at least 16 bytes")
	}
	if c.Production && (c.JWT.Secret == devSecret || c.Daily.Salt == "daily_salt_change_me") {
		return errors.New("set jwt.secret and daily.salt in production")
	}
	if c.Sessions.Capacity < 0 {
		return errors.New("sessions.capacity must not be negative")
	}
	return nil
}
