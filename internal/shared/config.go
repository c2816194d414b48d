package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is prepended to every environment variable that overrides a config value.
const EnvPrefix = "REGROUP_"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database" envPrefix:"DATABASE_"`
	Messaging MessagingConfig `toml:"messaging" envPrefix:"MESSAGING_"`
	Migration MigrationConfig `toml:"migration" envPrefix:"MIGRATION_"`
	Server    ServerConfig    `toml:"server" envPrefix:"SERVER_"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"PATH" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" env:"MAX_OPEN_CONNS" validate:"gte=1"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"MAX_IDLE_CONNS" validate:"gte=0"`
}

// MessagingConfig points at the messaging gateway that owns the platform session.
type MessagingConfig struct {
	BaseURL           string        `toml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	AccessToken       string        `toml:"access_token" env:"ACCESS_TOKEN"`
	BotID             string        `toml:"bot_id" env:"BOT_ID"`
	ParticipantDomain string        `toml:"participant_domain" env:"PARTICIPANT_DOMAIN" validate:"required,hostname_rfc1123"`
	RequestsPerSecond float64       `toml:"requests_per_second" env:"REQUESTS_PER_SECOND" validate:"gt=0"`
	Timeout           time.Duration `toml:"timeout" env:"TIMEOUT" validate:"gt=0"`
}

// MigrationConfig tunes batch sizing and pacing.
type MigrationConfig struct {
	MaxBatchSize   int           `toml:"max_batch_size" env:"MAX_BATCH_SIZE" validate:"gte=1,lte=256"`
	BatchDelay     time.Duration `toml:"batch_delay" env:"BATCH_DELAY" validate:"gte=0"`
	RecentMessages int           `toml:"recent_messages" env:"RECENT_MESSAGES" validate:"gte=1"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host          string `toml:"host" env:"HOST"`
	Port          int    `toml:"port" env:"PORT" validate:"gte=1,lte=65535"`
	WebhookSecret string `toml:"webhook_secret" env:"WEBHOOK_SECRET"`
}

// Addr returns the host:port pair the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults, then REGROUP_* environment variables are applied
// and the result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides config values with REGROUP_* environment variables.
func ApplyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate checks field constraints and reports every failing field in one error.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
