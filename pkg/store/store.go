// pkg/store/store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/David-Botos/vessel-recon/pkg/config"
)

func init() {
	// sqlx only knows the cgo driver name for SQLite placeholders
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// RunStore persists reconciliation runs in PostgreSQL or SQLite
type RunStore struct {
	db     *sqlx.DB
	cfg    *config.StoreConfig
	logger *zap.Logger
}

// Open connects to the store, applies pool settings and creates the schema
func Open(ctx context.Context, cfg *config.StoreConfig) (*RunStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zap.L().Named("run-store")
	logger.Info("Connecting to run store", zap.String("driver", cfg.Driver))

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s connection: %w", cfg.Driver, err)
	}

	if cfg.Driver == config.DriverSQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	} else {
		applyConnectionSettings(db.DB, cfg)
	}

	if err := pingWithTimeout(ctx, db.DB, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to run store: %w", err)
	}

	if cfg.StatementTimeout > 0 && cfg.Driver != config.DriverSQLite {
		_, err = db.ExecContext(ctx,
			fmt.Sprintf("SET statement_timeout = %d", cfg.StatementTimeout.Milliseconds()))
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	s := &RunStore{db: db, cfg: cfg, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create run store schema: %w", err)
	}

	logConnectionStats(logger, cfg.Driver, db.DB)
	return s, nil
}

// OpenDSN opens a store for a DSN using the default pool settings
func OpenDSN(ctx context.Context, dsn string) (*RunStore, error) {
	return Open(ctx, config.NewStoreConfig(dsn))
}

// DB returns the underlying connection
func (s *RunStore) DB() *sqlx.DB {
	return s.db
}

// Close closes the connection
func (s *RunStore) Close() error {
	logConnectionStats(s.logger, s.cfg.Driver, s.db.DB)
	return s.db.Close()
}

func (s *RunStore) ensureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *RunStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StatementTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StatementTimeout)
}

// quote returns a quoted identifier valid for both PostgreSQL and SQLite
func quote(name string) string {
	return pq.QuoteIdentifier(name)
}

func pingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- db.PingContext(pingCtx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-pingCtx.Done():
		return fmt.Errorf("ping timed out after %v: %w", timeout, pingCtx.Err())
	}
}

func applyConnectionSettings(db *sql.DB, cfg *config.StoreConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func logConnectionStats(logger *zap.Logger, name string, db *sql.DB) {
	stats := db.Stats()
	logger.Debug("Connection pool stats",
		zap.String("database", name),
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
		zap.Int("max_open", stats.MaxOpenConnections),
	)
}
