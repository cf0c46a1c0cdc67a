// Package database wires the Postgres connection pool backing the
// sessions/story_executions/checkpoints repositories.
package database

import (
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "wave_user",
		Database:        "wave_orchestrator",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// LoadFromEnv overlays DB_HOST/DB_PORT/DB_USER/DB_PASSWORD/DB_NAME/DB_SSL_MODE
// onto c, leaving any field whose variable is unset or malformed untouched.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("DB_SSL_MODE"); v != "" {
		c.SSLMode = v
	}
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return apperrors.NewValidationError("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return apperrors.NewValidationError("database port must be between 1 and 65535")
	}
	if c.User == "" {
		return apperrors.NewValidationError("database user is required")
	}
	if c.Database == "" {
		return apperrors.NewValidationError("database name is required")
	}
	if c.MaxOpenConns <= 0 {
		return apperrors.NewValidationError("max open connections must be greater than 0")
	}
	if c.MaxIdleConns < 0 {
		return apperrors.NewValidationError("max idle connections must be non-negative")
	}
	return nil
}

// ConnectionString builds a libpq-style DSN, omitting the password entirely
// when unset rather than emitting password=.
func (c *Config) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// Connect validates c, opens a pgx-backed *sqlx.DB, and applies the pool
// settings. The caller owns the returned handle's lifecycle.
func Connect(c *Config, logger *zap.Logger) (*sqlx.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	db, err := sqlx.Open("pgx", c.ConnectionString())
	if err != nil {
		return nil, apperrors.NewDatabaseError("open", err)
	}

	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperrors.NewDatabaseError("ping", err)
	}

	logger.Info("connected to database", zap.String("host", c.Host), zap.Int("port", c.Port), zap.String("database", c.Database))
	return db, nil
}
