package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBConn    string
	LogLevel  string
	JWTSecret string

	// Transfer engine
	LockTimeout time.Duration

	// Accrual job
	AccrualInterval      time.Duration
	AccrualGrowthFactor  decimal.Decimal
	AccrualCapMultiplier decimal.Decimal

	// Key rate integration
	CBRURL string

	// Notifications (optional; disabled when SMTPHost is empty)
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	lockTimeout, err := time.ParseDuration(getEnv("LOCK_TIMEOUT", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_TIMEOUT: %w", err)
	}
	accrualInterval, err := time.ParseDuration(getEnv("ACCRUAL_INTERVAL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCRUAL_INTERVAL: %w", err)
	}
	growthFactor, err := decimal.NewFromString(getEnv("ACCRUAL_GROWTH_FACTOR", "1.05"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCRUAL_GROWTH_FACTOR: %w", err)
	}
	capMultiplier, err := decimal.NewFromString(getEnv("ACCRUAL_CAP_MULTIPLIER", "2.07"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCRUAL_CAP_MULTIPLIER: %w", err)
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		DBConn:               getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		LogLevel:             getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:            getEnv("JWT_SECRET", "secret"),
		LockTimeout:          lockTimeout,
		AccrualInterval:      accrualInterval,
		AccrualGrowthFactor:  growthFactor,
		AccrualCapMultiplier: capMultiplier,
		CBRURL:               getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             getEnv("SMTP_PORT", "587"),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		SenderEmail:          getEnv("SENDER_EMAIL", "noreply@bank-service.local"),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.LockTimeout <= 0 {
		return nil, fmt.Errorf("LOCK_TIMEOUT must be positive")
	}
	if cfg.AccrualInterval <= 0 {
		return nil, fmt.Errorf("ACCRUAL_INTERVAL must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
