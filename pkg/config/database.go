// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Supported run-history drivers
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StoreConfig holds the run-history database parameters
type StoreConfig struct {
	Driver string
	DSN    string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Statement timeout
	StatementTimeout time.Duration
}

// PostgresConfig holds discrete PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// LoadStoreConfig loads the store configuration from environment variables.
// It returns nil when no store is configured.
func LoadStoreConfig() (*StoreConfig, error) {
	dsn := os.Getenv("RECON_STORE_DSN")
	if dsn == "" && os.Getenv("POSTGRES_DB") != "" {
		pg, err := LoadPostgresConfig()
		if err != nil {
			return nil, err
		}
		dsn = pg.ConnectionString()
	}
	if dsn == "" {
		return nil, nil
	}

	cfg := NewStoreConfig(dsn)
	if driver := os.Getenv("RECON_STORE_DRIVER"); driver != "" {
		cfg.Driver = driver
	}
	cfg.MaxOpenConns = getEnvAsInt("RECON_STORE_MAX_OPEN_CONNS", cfg.MaxOpenConns)
	cfg.MaxIdleConns = getEnvAsInt("RECON_STORE_MAX_IDLE_CONNS", cfg.MaxIdleConns)
	cfg.StatementTimeout = time.Duration(getEnvAsInt("RECON_STORE_STATEMENT_TIMEOUT_SECONDS", 60)) * time.Second

	return cfg, nil
}

// NewStoreConfig builds a store configuration for a DSN with pool defaults
func NewStoreConfig(dsn string) *StoreConfig {
	return &StoreConfig{
		Driver:           DriverForDSN(dsn),
		DSN:              dsn,
		MaxOpenConns:     5,
		MaxIdleConns:     2,
		ConnMaxLifetime:  30 * time.Minute,
		ConnMaxIdleTime:  10 * time.Minute,
		StatementTimeout: 60 * time.Second,
	}
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		return nil, errors.New("POSTGRES_USER environment variable is required")
	}

	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		return nil, errors.New("POSTGRES_DB environment variable is required")
	}

	return &PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     getEnvAsInt("POSTGRES_PORT", 5432),
		User:     user,
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: database,
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}, nil
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Database,
		c.SSLMode,
	)
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	return dsn
}

// DriverForDSN guesses the database/sql driver name from a DSN
func DriverForDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"),
		strings.HasPrefix(lower, "postgresql://"),
		strings.HasPrefix(lower, "host="):
		return DriverPgx
	case strings.HasPrefix(lower, "file:"),
		strings.HasPrefix(lower, ":memory:"),
		strings.HasSuffix(lower, ".db"),
		strings.HasSuffix(lower, ".sqlite"):
		return DriverSQLite
	default:
		return DriverPgx
	}
}

// Validate checks the store settings
func (c *StoreConfig) Validate() error {
	if c.DSN == "" {
		return errors.New("store DSN is required")
	}
	switch c.Driver {
	case DriverPgx, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported store driver %q", c.Driver)
	}
	return nil
}
