package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type Config struct {
	Client    ClientConfig
	Transport TransportConfig
	Info      InfoConfig
	Log       LogConfig
}

type ClientConfig struct {
	ServerURL string `validate:"required,url"`
	Username  string `validate:"max=20"`
}

// TransportConfig selects the websocket driver and its deadlines.
// ReadTimeout and PongTimeout are optional hardening; zero disables them.
type TransportConfig struct {
	Driver           string        `validate:"oneof=gorilla coder"`
	HandshakeTimeout time.Duration `validate:"gt=0"`
	WriteTimeout     time.Duration `validate:"gt=0"`
	ReadTimeout      time.Duration `validate:"gte=0"`
	PongTimeout      time.Duration `validate:"gte=0"`
}

type InfoConfig struct {
	Timeout time.Duration `validate:"gt=0"`
}

type LogConfig struct {
	Format string `validate:"oneof=text json"`
	Level  string `validate:"oneof=debug info warn error"`
}

// Load reads the configuration from the environment and an optional .env
// file. It does not validate, so callers can apply overrides first and then
// call Validate.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	cfg := &Config{
		Client: ClientConfig{
			ServerURL: getEnvOrDefault("CHAT_SERVER_URL", "ws://localhost:3000"),
			Username:  os.Getenv("CHAT_USERNAME"),
		},
		Transport: TransportConfig{
			Driver: getEnvOrDefault("CHAT_TRANSPORT", "gorilla"),
		},
		Log: LogConfig{
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		},
	}

	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"CHAT_HANDSHAKE_TIMEOUT", "10s", &cfg.Transport.HandshakeTimeout},
		{"CHAT_WRITE_TIMEOUT", "10s", &cfg.Transport.WriteTimeout},
		{"CHAT_READ_TIMEOUT", "0s", &cfg.Transport.ReadTimeout},
		{"CHAT_PONG_TIMEOUT", "0s", &cfg.Transport.PongTimeout},
		{"CHAT_INFO_TIMEOUT", "5s", &cfg.Info.Timeout},
	}
	for _, d := range durations {
		value, err := getDurationOrDefault(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = value
	}

	return cfg, nil
}

// Validate checks the struct tags on every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration for %s: %w", key, err)
	}
	return duration, nil
}
