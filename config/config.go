package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort        string `mapstructure:"HTTP_PORT"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Code and token stores.
	StoreBackend      string `mapstructure:"STORE_BACKEND"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int    `mapstructure:"REDIS_DB"`
	RedisKeyPrefix    string `mapstructure:"REDIS_KEY_PREFIX"`
	RedisEventChannel string `mapstructure:"REDIS_EVENT_CHANNEL"`

	// Client, user and secured resource directories.
	DirectoryBackend string `mapstructure:"DIRECTORY_BACKEND"`
	MongoURI         string `mapstructure:"MONGO_URI"`
	MongoDBName      string `mapstructure:"MONGO_DB_NAME"`

	AuthCodeTTL          time.Duration `mapstructure:"AUTH_CODE_TTL"`
	AuthCodeLength       int           `mapstructure:"AUTH_CODE_LENGTH"`
	TokenLength          int           `mapstructure:"TOKEN_LENGTH"`
	AccessTokenTTL       time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL      time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	RefreshTokenRotation string        `mapstructure:"REFRESH_TOKEN_ROTATION"`
	BcryptCost           int           `mapstructure:"BCRYPT_COST"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*ServerConfig, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/authcore/")
	v.AddConfigPath("$HOME/.authcore")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "authcore")

	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "authcore")
	v.SetDefault("REDIS_EVENT_CHANNEL", "authcore:resources")

	v.SetDefault("DIRECTORY_BACKEND", BackendMemory)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "authcore")

	v.SetDefault("AUTH_CODE_TTL", time.Minute)
	v.SetDefault("AUTH_CODE_LENGTH", 6)
	v.SetDefault("TOKEN_LENGTH", 32)
	v.SetDefault("ACCESS_TOKEN_TTL", time.Hour)
	v.SetDefault("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	v.SetDefault("REFRESH_TOKEN_ROTATION", "rotate")
	v.SetDefault("BCRYPT_COST", 10)
}

// Validate reports the first invalid setting.
func (c *ServerConfig) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: want %s or %s", c.StoreBackend, BackendMemory, BackendRedis)
	}

	switch c.DirectoryBackend {
	case BackendMemory, BackendMongo:
	default:
		return fmt.Errorf("invalid DIRECTORY_BACKEND %q: want %s or %s", c.DirectoryBackend, BackendMemory, BackendMongo)
	}

	if c.StoreBackend == BackendRedis && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for the redis store backend")
	}

	if c.DirectoryBackend == BackendMongo && (c.MongoURI == "" || c.MongoDBName == "") {
		return errors.New("MONGO_URI and MONGO_DB_NAME are required for the mongo directory backend")
	}

	for name, d := range map[string]time.Duration{
		"AUTH_CODE_TTL":     c.AuthCodeTTL,
		"ACCESS_TOKEN_TTL":  c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL": c.RefreshTokenTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.AuthCodeLength < 6 {
		return fmt.Errorf("AUTH_CODE_LENGTH must be at least 6, got %d", c.AuthCodeLength)
	}

	if c.TokenLength < 16 {
		return fmt.Errorf("TOKEN_LENGTH must be at least 16, got %d", c.TokenLength)
	}

	switch c.RefreshTokenRotation {
	case "rotate", "reuse":
	default:
		return fmt.Errorf("invalid REFRESH_TOKEN_ROTATION %q: want rotate or reuse", c.RefreshTokenRotation)
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}

	return nil
}
