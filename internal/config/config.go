package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Frontends a process can serve.
const (
	FrontendTUI      = "tui"
	FrontendTelegram = "telegram"
)

// Config keeps runtime settings.
type Config struct {
	Frontend         string
	TelegramToken    string
	DatabaseURL      string
	AppID            string
	JWTSecret        string
	TokenTTL         time.Duration
	BcryptCost       int
	DigestInterval   time.Duration
	DigestAt         string
	NATSURL          string
	NATSSubject      string
	FallbackDelay    time.Duration
	GuestFallback    bool
	InitialToken     string
	DefaultSort      string
	DefaultDirection string
}

// Load reads an optional config file and TASKBOARD_* environment variables.
// path may be empty, in which case taskboard.{toml,yaml,json} is looked up
// in the working directory and $HOME/.config/taskboard.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TASKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("taskboard")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "taskboard"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Frontend:         strings.ToLower(strings.TrimSpace(v.GetString("frontend"))),
		TelegramToken:    strings.TrimSpace(v.GetString("telegram_token")),
		DatabaseURL:      strings.TrimSpace(v.GetString("database_url")),
		AppID:            strings.TrimSpace(v.GetString("app_id")),
		JWTSecret:        v.GetString("jwt_secret"),
		TokenTTL:         v.GetDuration("token_ttl"),
		BcryptCost:       v.GetInt("bcrypt_cost"),
		DigestInterval:   v.GetDuration("digest_interval"),
		DigestAt:         strings.TrimSpace(v.GetString("digest_at")),
		NATSURL:          strings.TrimSpace(v.GetString("nats_url")),
		NATSSubject:      strings.TrimSpace(v.GetString("nats_subject")),
		FallbackDelay:    v.GetDuration("fallback_delay"),
		GuestFallback:    v.GetBool("guest_fallback"),
		InitialToken:     strings.TrimSpace(v.GetString("initial_token")),
		DefaultSort:      strings.TrimSpace(v.GetString("default_sort")),
		DefaultDirection: strings.TrimSpace(v.GetString("default_direction")),
	}

	return cfg, cfg.validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("frontend", FrontendTUI)
	v.SetDefault("telegram_token", "")
	v.SetDefault("database_url", "taskboard.db")
	v.SetDefault("app_id", "default-app-id")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("bcrypt_cost", 12)
	v.SetDefault("digest_interval", 5*time.Hour)
	v.SetDefault("digest_at", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject", "taskboard.changes")
	v.SetDefault("fallback_delay", time.Second)
	v.SetDefault("guest_fallback", true)
	v.SetDefault("initial_token", "")
	v.SetDefault("default_sort", "createdAt")
	v.SetDefault("default_direction", "descending")
}

func (c Config) validate() error {
	switch c.Frontend {
	case FrontendTUI:
	case FrontendTelegram:
		if c.TelegramToken == "" {
			return fmt.Errorf("TASKBOARD_TELEGRAM_TOKEN is required for the telegram frontend")
		}
	default:
		return fmt.Errorf("unknown frontend %q", c.Frontend)
	}
	if c.AppID == "" {
		return fmt.Errorf("app_id must not be empty")
	}
	if c.DigestInterval < 0 {
		return fmt.Errorf("digest_interval must not be negative")
	}
	return nil
}
