package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/platform/pagination"
	sqlitemigrate "github.com/louisbranch/healthrecords/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/recordhelper"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// DefaultDeleteBatchSize bounds the rows enumerated and deleted per statement.
const DefaultDeleteBatchSize = 500

// Config tunes the transaction manager.
type Config struct {
	PageSize pagination.PageSizeConfig
	// DeleteBatchSize bounds delete and upsert chunks inside one transaction.
	DeleteBatchSize int
	Features        request.FeatureFlags
	// ChangeLogRetentionDays prunes change-log rows during retention sweeps;
	// zero keeps them forever.
	ChangeLogRetentionDays int
	// Now overrides the clock used for change-log and modification times.
	Now func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:        pagination.DefaultPageSizeConfig(),
		DeleteBatchSize: DefaultDeleteBatchSize,
	}
}

func (c Config) normalized() Config {
	if c.PageSize.Default <= 0 {
		c.PageSize.Default = pagination.DefaultPageSize
	}
	if c.PageSize.Max <= 0 {
		c.PageSize.Max = pagination.MaxPageSize
	}
	if c.DeleteBatchSize <= 0 {
		c.DeleteBatchSize = DefaultDeleteBatchSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// TransactionManager executes request builder statements against SQLite.
//
// It takes no locks of its own: SQLite serializes write transactions and the
// busy timeout makes concurrent writers wait for each other.
type TransactionManager struct {
	sqlDB  *sql.DB
	tables recordhelper.Registry
	cfg    Config
}

// NewTransactionManager wraps an already migrated database.
func NewTransactionManager(sqlDB *sql.DB, cfg Config) *TransactionManager {
	return &TransactionManager{
		sqlDB:  sqlDB,
		tables: recordhelper.NewRegistry(),
		cfg:    cfg.normalized(),
	}
}

// Open opens a health record SQLite database and applies migrations.
func Open(path string, cfg Config) (*TransactionManager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	sqlDB, err := sql.Open("sqlite", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	manager := NewTransactionManager(sqlDB, cfg)
	if err := manager.runMigrations(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return manager, nil
}

// dataSourceName applies connection pragmas through the modernc _pragma
// parameter. Write transactions begin IMMEDIATE so a reader never has to
// upgrade a stale WAL snapshot, which the busy timeout cannot wait out.
func dataSourceName(path string) string {
	return filepath.Clean(path) + "?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
}

// Close releases the underlying SQLite database.
func (m *TransactionManager) Close() error {
	if m == nil || m.sqlDB == nil {
		return nil
	}
	return m.sqlDB.Close()
}

// DB returns the raw database handle.
func (m *TransactionManager) DB() *sql.DB {
	if m == nil {
		return nil
	}
	return m.sqlDB
}

// Tables returns the record table registry used to build requests.
func (m *TransactionManager) Tables() recordhelper.Registry {
	return m.tables
}

// PageSizeConfig returns the page size bounds for filtered reads.
func (m *TransactionManager) PageSizeConfig() pagination.PageSizeConfig {
	return m.cfg.PageSize
}

// SchemaStatus returns the applied migrations and schema steps.
func (m *TransactionManager) SchemaStatus(ctx context.Context) ([]sqlitemigrate.AppliedMigration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m == nil || m.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return sqlitemigrate.ListApplied(ctx, m.sqlDB)
}

// runMigrations applies the shared SQL files, then the record table steps.
func (m *TransactionManager) runMigrations(ctx context.Context) error {
	if err := sqlitemigrate.ApplyMigrations(ctx, m.sqlDB, migrations.FS, ""); err != nil {
		return err
	}
	steps, err := m.tables.SchemaSteps()
	if err != nil {
		return fmt.Errorf("record table steps: %w", err)
	}
	return sqlitemigrate.ApplySteps(ctx, m.sqlDB, steps)
}

func (m *TransactionManager) now() time.Time {
	return m.cfg.Now().UTC()
}

func (m *TransactionManager) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m == nil || m.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// storeError marks a failure reported by SQLite for a well-formed statement.
func storeError(operation string, err error) error {
	return apperrors.Wrap(apperrors.CodeStoreExecution, operation, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
