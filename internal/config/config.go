// Package config содержит логику чтения конфигурации сервиса учёта доставок.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress          = "localhost:8080"
	defaultTokenTTL            = 8 * time.Hour
	defaultOperationTimeout    = 3 * time.Second
	defaultDispatchConcurrency = 4
	defaultLogLevel            = "info"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress          string        `env:"RUN_ADDRESS"`
	DatabaseURI         string        `env:"DATABASE_URI"`
	TokenSecret         string        `env:"TOKEN_SECRET"`
	TokenTTL            time.Duration `env:"TOKEN_TTL"`
	OperationTimeout    time.Duration `env:"OPERATION_TIMEOUT"`
	DispatchConcurrency int           `env:"DISPATCH_CONCURRENCY"`
	LogLevel            string        `env:"LOG_LEVEL"`
	AdminLogin          string        `env:"ADMIN_LOGIN"`
	AdminPassword       string        `env:"ADMIN_PASSWORD"`
}

// EnvFile задаёт файл с переменными окружения. Отсутствие файла не считается ошибкой.
var EnvFile = ".env"

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных
// окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", EnvFile, err)
	}

	fromEnv := &Config{}
	if err := env.Parse(fromEnv); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.TokenSecret, "s", "", "secret for signing session tokens")
	flag.DurationVar(&cfg.TokenTTL, "token-ttl", defaultTokenTTL, "session token lifetime")
	flag.DurationVar(&cfg.OperationTimeout, "op-timeout", defaultOperationTimeout, "timeout of a single storage operation")
	flag.IntVar(&cfg.DispatchConcurrency, "dispatch-concurrency", defaultDispatchConcurrency, "orders processed in parallel by one dispatch")
	flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")
	flag.StringVar(&cfg.AdminLogin, "admin-login", "", "login of the operator account created at startup")
	flag.StringVar(&cfg.AdminPassword, "admin-password", "", "password of the operator account created at startup")

	flag.Parse()

	if fromEnv.RunAddress != "" {
		cfg.RunAddress = fromEnv.RunAddress
	}
	if fromEnv.DatabaseURI != "" {
		cfg.DatabaseURI = fromEnv.DatabaseURI
	}
	if fromEnv.TokenSecret != "" {
		cfg.TokenSecret = fromEnv.TokenSecret
	}
	if fromEnv.TokenTTL != 0 {
		cfg.TokenTTL = fromEnv.TokenTTL
	}
	if fromEnv.OperationTimeout != 0 {
		cfg.OperationTimeout = fromEnv.OperationTimeout
	}
	if fromEnv.DispatchConcurrency != 0 {
		cfg.DispatchConcurrency = fromEnv.DispatchConcurrency
	}
	if fromEnv.LogLevel != "" {
		cfg.LogLevel = fromEnv.LogLevel
	}
	if fromEnv.AdminLogin != "" {
		cfg.AdminLogin = fromEnv.AdminLogin
	}
	if fromEnv.AdminPassword != "" {
		cfg.AdminPassword = fromEnv.AdminPassword
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", cfg.TokenTTL)
	}
	if cfg.OperationTimeout <= 0 {
		return nil, fmt.Errorf("operation timeout must be positive, got %s", cfg.OperationTimeout)
	}
	if cfg.DispatchConcurrency <= 0 {
		return nil, fmt.Errorf("dispatch concurrency must be positive, got %d", cfg.DispatchConcurrency)
	}

	return cfg, nil
}
