// Package config содержит логику чтения конфигурации сервиса chatearn.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса chatearn.
type Config struct {
	RunAddress     string `env:"RUN_ADDRESS"`
	DatabaseURI    string `env:"DATABASE_URI"`
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	AuthSecret     string `env:"AUTH_SECRET"`
	AdminAccountID int64  `env:"ADMIN_ACCOUNT_ID"`
	AppName        string `env:"APP_NAME"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envTelegramToken := cfg.TelegramToken
	envAuthSecret := cfg.AuthSecret
	envAdminAccountID := cfg.AdminAccountID
	envAppName := cfg.AppName

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.TelegramToken, "t", "", "telegram bot token")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for auth cookies")
	flag.Int64Var(&cfg.AdminAccountID, "admin", 0, "account id with access to admin routes")
	flag.StringVar(&cfg.AppName, "n", "Chatearn", "application name used in responses")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envTelegramToken != "" {
		cfg.TelegramToken = envTelegramToken
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envAdminAccountID != 0 {
		cfg.AdminAccountID = envAdminAccountID
	}
	if envAppName != "" {
		cfg.AppName = envAppName
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AppName == "" {
		cfg.AppName = "Chatearn"
	}

	return cfg, nil
}
