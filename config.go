package main

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

// Config is read from the environment, after an optional .env file is loaded.
type Config struct {
	Host     string `env:"HOST,default=localhost" validate:"required"`
	Port     int    `env:"PORT,default=8080" validate:"min=0,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`

	ConfigDir string `env:"CONFIG_DIR,default=configs"`
	// DefaultVariant replaces classic as the preset for sessions created
	// without a variant name.
	DefaultVariant string `env:"DEFAULT_VARIANT" validate:"omitempty,max=64"`

	// StoreKind is memory, file, badger or postgres. DATABASE_URL selects postgres
	// when STORE is left unset.
	StoreKind   string `env:"STORE" validate:"omitempty,oneof=memory file badger postgres"`
	StorePath   string `env:"STORE_PATH,default=data"`
	DatabaseURL string `env:"DATABASE_URL"`

	TokenSecret   string        `env:"TOKEN_SECRET"`
	TokenLifetime time.Duration `env:"TOKEN_LIFETIME,default=24h" validate:"gt=0"`

	SessionIdleTTL  time.Duration `env:"SESSION_IDLE_TTL,default=1h" validate:"gt=0"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL,default=5m" validate:"gt=0"`
	BotMoveDelay    time.Duration `env:"BOT_MOVE_DELAY,default=500ms" validate:"gte=0"`
	MaxChatLength   int           `env:"MAX_CHAT_LENGTH,default=500" validate:"gt=0"`

	NgrokEnabled   bool   `env:"NGROK_ENABLED"`
	NgrokAuthToken string `env:"NGROK_AUTHTOKEN"`
	NgrokDomain    string `env:"NGROK_DOMAIN"`
}

var configValidator = validator.New()

// LoadConfig reads Config from the process environment and validates it
func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and fills the derived store kind
func (c *Config) Validate() error {
	if c.StoreKind == "" {
		c.StoreKind = "badger"
		if c.DatabaseURL != "" {
			c.StoreKind = "postgres"
		}
	}
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.StoreKind == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("invalid config: STORE=postgres requires DATABASE_URL")
	}
	return nil
}

// StoreLocation is the directory or DSN handed to storage.Open
func (c Config) StoreLocation() string {
	if c.StoreKind == "postgres" {
		return c.DatabaseURL
	}
	return c.StorePath
}

// Addr is the host:port the HTTP server binds to
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
