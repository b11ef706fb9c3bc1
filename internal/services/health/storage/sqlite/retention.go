package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
	"go.opentelemetry.io/otel/attribute"
)

// RetentionResult summarizes one retention sweep.
type RetentionResult struct {
	DeletedRecords   int
	PrunedChangeLogs int
}

// RunRetentionSweep deletes records that started more than days before now
// and prunes change-log rows older than the configured change-log window.
// Both happen in one transaction.
func (m *TransactionManager) RunRetentionSweep(ctx context.Context, days int, now time.Time) (RetentionResult, error) {
	if err := m.ready(ctx); err != nil {
		return RetentionResult{}, err
	}
	tableRequests, err := m.tables.RetentionDeleteRequests(days, now)
	if err != nil {
		return RetentionResult{}, err
	}
	req := request.NewRetentionDelete(tableRequests)
	tableRequests, err = req.TableRequests(m.tables)
	if err != nil {
		return RetentionResult{}, err
	}

	var result RetentionResult
	err = m.inTransaction(ctx, "retention_sweep", func(ctx context.Context, tx *sql.Tx) error {
		deleted, err := m.deleteTables(ctx, tx, tableRequests, req.PackageName(), storage.ResourceKindRecord)
		if err != nil {
			return err
		}
		result.DeletedRecords = deleted

		if m.cfg.ChangeLogRetentionDays > 0 {
			cutoff := now.Add(-time.Duration(m.cfg.ChangeLogRetentionDays) * 24 * time.Hour)
			pruned, err := pruneChangeLogs(ctx, tx, cutoff)
			if err != nil {
				return err
			}
			result.PrunedChangeLogs = pruned
		}
		return nil
	}, attribute.Int("healthrecords.retention_days", days))
	if err != nil {
		return RetentionResult{}, err
	}
	return result, nil
}
