package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Log      LogConfig
	Mpesa    MpesaConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `env:"SERVER_PORT,default=8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT,default=10s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT,default=40s"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `env:"DB_HOST,default=localhost"`
	Port     string `env:"DB_PORT,default=5432"`
	User     string `env:"DB_USER,default=postgres"`
	Password string `env:"DB_PASSWORD,default=postgres"`
	DBName   string `env:"DB_NAME,default=freelance"`
	SSLMode  string `env:"DB_SSLMODE,default=disable"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `env:"NEW_RELIC_APP_NAME,default=freelance-payments"`
	LicenseKey string `env:"NEW_RELIC_LICENSE_KEY"`
	Enabled    bool   `env:"NEW_RELIC_ENABLED,default=false"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// MpesaConfig holds the Daraja (M-Pesa) credentials and endpoints.
// Credential fields are optional at load time; the payment flow records a
// CONFIG_INVALID attempt when they are missing instead of refusing to start.
type MpesaConfig struct {
	Environment        string        `env:"MPESA_ENV,default=sandbox"`
	BaseURL            string        `env:"MPESA_BASE_URL"`
	BusinessShortCode  string        `env:"MPESA_BUSINESS_SHORT_CODE,default=174379"`
	ConsumerKey        string        `env:"MPESA_CONSUMER_KEY"`
	ConsumerSecret     string        `env:"MPESA_CONSUMER_SECRET"`
	Passkey            string        `env:"MPESA_PASSKEY"`
	SecurityCredential string        `env:"MPESA_SECURITY_CREDENTIAL"`
	InitiatorName      string        `env:"MPESA_INITIATOR_NAME"`
	AccountReference   string        `env:"MPESA_ACCOUNT_REFERENCE,default=Freelance Marketplace"`
	TransactionDesc    string        `env:"MPESA_TRANSACTION_DESC,default=Payment for job"`
	CallbackHost       string        `env:"MPESA_CALLBACK_HOST,default=http://localhost:8080"`
	Timeout            time.Duration `env:"MPESA_TIMEOUT,default=30s"`
	Retries            int           `env:"MPESA_RETRIES,default=1"`
	FixedAmount        int64         `env:"MPESA_FIXED_AMOUNT,default=0"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Mpesa.Environment != "sandbox" && cfg.Mpesa.Environment != "live" {
		return nil, fmt.Errorf("invalid MPESA_ENV %q: want sandbox or live", cfg.Mpesa.Environment)
	}
	if cfg.Mpesa.Retries < 0 {
		return nil, fmt.Errorf("invalid MPESA_RETRIES %d", cfg.Mpesa.Retries)
	}

	return &cfg, nil
}
