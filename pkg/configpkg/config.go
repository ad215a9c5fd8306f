// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults applied when the transfer tunables are not configured.
const (
	DefaultTransferMaxAttempts    = 3
	DefaultTransferAttemptTimeout = 5 * time.Second
	DefaultTransferRetryBackoff   = 10 * time.Millisecond
	DefaultTransferPublishTimeout = 2 * time.Second
	DefaultShutdownTimeout        = 10 * time.Second
	DefaultKafkaTransferTopic     = "transfer_completed"
)

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environment variables.
type Config struct {
	DBDriver               string        `mapstructure:"DB_DRIVER"`
	DBSource               string        `mapstructure:"DB_SOURCE"`
	ServerAddress          string        `mapstructure:"SERVER_ADDRESS"`
	TokenType              string        `mapstructure:"TOKEN_TYPE"`
	TokenSymmetricKey      string        `mapstructure:"TOKEN_SYMMETRIC_KEY"`
	AccessTokenDuration    time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	Environment            string        `mapstructure:"GO_ENV"`
	InitialBalance         string        `mapstructure:"INITIAL_BALANCE"`
	TransferMaxAttempts    int           `mapstructure:"TRANSFER_MAX_ATTEMPTS"`
	TransferAttemptTimeout time.Duration `mapstructure:"TRANSFER_ATTEMPT_TIMEOUT"`
	TransferRetryBackoff   time.Duration `mapstructure:"TRANSFER_RETRY_BACKOFF"`
	TransferPublishTimeout time.Duration `mapstructure:"TRANSFER_PUBLISH_TIMEOUT"`
	KafkaBrokers           string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTransferTopic     string        `mapstructure:"KAFKA_TRANSFER_TOPIC"`
	ShutdownTimeout        time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	CORSAllowedOrigins     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// Brokers returns the configured Kafka broker addresses.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// AllowedOrigins returns the origins browsers may call the API from.
// A single "*" allows any origin.
func (c Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	var items []string

	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

// Load reads configuration from file or environment variables.
//
// A .env file next to app.env, if present, is loaded into the process
// environment first so local overrides win over app.env.
func Load(path string) (Config, error) {
	var c Config

	err := godotenv.Load(filepath.Join(path, ".env"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, err
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.SetDefault("TOKEN_TYPE", "paseto")
	v.SetDefault("INITIAL_BALANCE", "0")
	v.SetDefault("TRANSFER_MAX_ATTEMPTS", DefaultTransferMaxAttempts)
	v.SetDefault("TRANSFER_ATTEMPT_TIMEOUT", DefaultTransferAttemptTimeout)
	v.SetDefault("TRANSFER_RETRY_BACKOFF", DefaultTransferRetryBackoff)
	v.SetDefault("TRANSFER_PUBLISH_TIMEOUT", DefaultTransferPublishTimeout)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TRANSFER_TOPIC", DefaultKafkaTransferTopic)
	v.SetDefault("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.AutomaticEnv()

	err = v.ReadInConfig()
	if err != nil {
		return c, err
	}

	err = v.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}
