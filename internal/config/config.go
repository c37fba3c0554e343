package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrMissingToken is returned when neither DISCORD_TOKEN nor TOKEN is set.
var ErrMissingToken = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	DiscordToken string   `env:"DISCORD_TOKEN"`
	Prefix       string   `env:"PREFIX" envDefault:"-"`
	AllowedUsers []string `env:"ALLOWED_USERS" envSeparator:","`

	OpenAIKey       string `env:"OPENAI_API_KEY"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	StabilityAPIKey string `env:"STABILITY_API_KEY"`

	DataDir    string `env:"DATA_DIR" envDefault:"data"`
	ERLCAPIURL string `env:"ERLC_API_URL" envDefault:"https://api.policeroleplay.community/v1"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string `env:"LOG_FILE"`
	MetricsAddr string `env:"METRICS_ADDR"`

	AutoBoostInterval time.Duration `env:"AUTO_BOOST_INTERVAL" envDefault:"5m"`
}

// Load reads an optional .env file and parses the environment.
// It reports whether a .env file was found so the caller can log it once a
// logger exists.
func Load() (*Config, bool, error) {
	cfg, dotenv, err := LoadUnchecked()
	if err != nil {
		return nil, dotenv, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, dotenv, err
	}
	return cfg, dotenv, nil
}

// LoadUnchecked is Load without validation, for tools that only read the
// data directory.
func LoadUnchecked() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, dotenv, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.DiscordToken == "" {
		cfg.DiscordToken = os.Getenv("TOKEN")
	}
	cfg.AllowedUsers = normalizeIDs(cfg.AllowedUsers)
	return &cfg, dotenv, nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrMissingToken
	}
	if c.Prefix == "" {
		return errors.New("PREFIX must not be empty")
	}
	if c.AutoBoostInterval <= 0 {
		return fmt.Errorf("AUTO_BOOST_INTERVAL must be positive, got %s", c.AutoBoostInterval)
	}
	return nil
}

// IsAllowed reports whether userID is listed in ALLOWED_USERS.
func (c *Config) IsAllowed(userID string) bool {
	return userID != "" && slices.Contains(c.AllowedUsers, userID)
}

// DataFile returns the path of a JSON document inside DATA_DIR.
func (c *Config) DataFile(name string) string {
	return filepath.Join(c.DataDir, name)
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
