package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath   string
	StorageTimeout time.Duration

	// AMQP; empty URL disables event publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Billing
	AgreementsFile   string
	PaymentTermsDays int

	// Worker
	BillingRunInterval time.Duration

	// Report export
	ExportBackend       string
	GoogleSpreadsheetID string
	AgedDebtSheetName   string
	IncomeSheetName     string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/livery.db"),
		StorageTimeout: getEnvDuration("STORAGE_TIMEOUT", 5*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "livery"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "billing_events"),

		AgreementsFile:   getEnv("AGREEMENTS_FILE", "./data/agreements.json"),
		PaymentTermsDays: getEnvInt("PAYMENT_TERMS_DAYS", 14),

		BillingRunInterval: getEnvDuration("BILLING_RUN_INTERVAL", 6*time.Hour),

		ExportBackend:       getEnv("EXPORT_BACKEND", "none"),
		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		AgedDebtSheetName:   getEnv("AGED_DEBT_SHEET_NAME", "Aged Debt"),
		IncomeSheetName:     getEnv("INCOME_SHEET_NAME", "Income"),
	}

	return cfg
}

// Validate checks the configuration, collecting every problem into one
// error so a misconfigured deployment reports all faults at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.StorageTimeout < 100*time.Millisecond || c.StorageTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid storage timeout %v: must be between 100ms and 1m", c.StorageTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.AgreementsFile == "" {
		errors = append(errors, "agreements file path cannot be empty")
	}

	if c.PaymentTermsDays < 1 || c.PaymentTermsDays > 365 {
		errors = append(errors, fmt.Sprintf("invalid payment terms %d days: must be between 1 and 365", c.PaymentTermsDays))
	}

	if c.BillingRunInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid billing run interval %v: must be at least 1 minute", c.BillingRunInterval))
	} else if c.BillingRunInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid billing run interval %v: must be at most 7 days", c.BillingRunInterval))
	}

	switch c.ExportBackend {
	case "none", "memory":
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets export")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid export backend '%s': must be one of [none memory sheets]", c.ExportBackend))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
