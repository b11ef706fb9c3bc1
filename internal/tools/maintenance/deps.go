package maintenance

import (
	"context"
	"time"

	sqlitemigrate "github.com/louisbranch/healthrecords/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/sqlite"
)

// healthStore is the part of the transaction manager the maintenance tasks use.
type healthStore interface {
	SchemaStatus(ctx context.Context) ([]sqlitemigrate.AppliedMigration, error)
	RunRetentionSweep(ctx context.Context, days int, now time.Time) (sqlite.RetentionResult, error)
	ChangeLogCounts(ctx context.Context, since time.Time) ([]sqlite.ChangeLogCount, error)
	LatestChangeLogToken(ctx context.Context) (int64, error)
	Close() error
}

var _ healthStore = (*sqlite.TransactionManager)(nil)
