package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/recordhelper"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
	"go.opentelemetry.io/otel/attribute"
)

// UpsertAll writes every record of the batch and returns their ids in input
// order. Application and device rows are resolved once per batch; a change-log
// entry is written for every row the upsert actually changed.
//
// An id that belongs to another package fails the whole batch with
// storage.ErrNotFound.
func (m *TransactionManager) UpsertAll(ctx context.Context, req request.UpsertTransactionRequest) ([]string, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	upserts := req.UpsertRequests()
	if len(upserts) == 0 {
		return nil, fmt.Errorf("upsert request has no records")
	}

	err := m.inTransaction(ctx, "upsert_all", func(ctx context.Context, tx *sql.Tx) error {
		now := m.now()
		appInfoID, err := resolveApplication(ctx, tx, req.PackageName(), now)
		if err != nil {
			return err
		}
		deviceInfoID, err := resolveDevice(ctx, tx, req.Device())
		if err != nil {
			return err
		}

		for start := 0; start < len(upserts); start += m.cfg.DeleteBatchSize {
			end := min(start+m.cfg.DeleteBatchSize, len(upserts))
			entries := make([]storage.ChangeLogEntry, 0, end-start)
			for _, upsert := range upserts[start:end] {
				result, err := tx.ExecContext(ctx, upsert.Command(), upsert.Args(appInfoID, deviceInfoID)...)
				if err != nil {
					return storeError("upsert into "+upsert.Table, err)
				}
				changed, err := result.RowsAffected()
				if err != nil {
					return storeError("upsert into "+upsert.Table, err)
				}
				if changed == 0 {
					if err := checkUpsertOwner(ctx, tx, upsert, req.PackageName()); err != nil {
						return err
					}
					continue
				}
				entries = append(entries, storage.ChangeLogEntry{
					RecordID:    upsert.RecordID,
					RecordType:  upsert.RecordType,
					Kind:        storage.ResourceKindRecord,
					Operation:   storage.ChangeOperationUpsert,
					PackageName: req.PackageName(),
					CreatedAt:   now,
				})
			}
			if err := appendChangeLogs(ctx, tx, entries); err != nil {
				return err
			}
		}
		return nil
	},
		attribute.String("healthrecords.package_name", req.PackageName()),
		attribute.Int("healthrecords.batch_size", len(upserts)),
	)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(upserts))
	for i, upsert := range upserts {
		ids[i] = upsert.RecordID
	}
	return ids, nil
}

// checkUpsertOwner tells a stale client version apart from a row owned by
// another package after an upsert changed nothing.
func checkUpsertOwner(ctx context.Context, tx *sql.Tx, upsert request.UpsertTableRequest, packageName string) error {
	var owner string
	err := tx.QueryRowContext(ctx,
		"SELECT "+request.ColumnPackageName+" FROM "+upsert.Table+" WHERE "+request.ColumnUUID+" = ?", upsert.RecordID,
	).Scan(&owner)
	if err != nil {
		return storeError("read record owner", err)
	}
	if owner != packageName {
		return fmt.Errorf("upsert record %s: %w", upsert.RecordID, storage.ErrNotFound)
	}
	return nil
}

func resolveApplication(ctx context.Context, tx *sql.Tx, packageName string, now time.Time) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO `+recordhelper.ApplicationInfoTable+` (package_name, first_seen_time, last_seen_time)
VALUES (?, ?, ?)
ON CONFLICT(package_name) DO UPDATE SET last_seen_time = excluded.last_seen_time
`, packageName, toMillis(now), toMillis(now)); err != nil {
		return 0, storeError("upsert application info", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx,
		"SELECT row_id FROM "+recordhelper.ApplicationInfoTable+" WHERE package_name = ?", packageName,
	).Scan(&id); err != nil {
		return 0, storeError("read application info", err)
	}
	return id, nil
}

// resolveDevice returns nil for an unknown device.
func resolveDevice(ctx context.Context, tx *sql.Tx, device storage.Device) (*int64, error) {
	if device == (storage.Device{}) {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+recordhelper.DeviceInfoTable+" (manufacturer, model, device_type) VALUES (?, ?, ?)",
		device.Manufacturer, device.Model, int64(device.Type),
	); err != nil {
		return nil, storeError("insert device info", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx,
		"SELECT row_id FROM "+recordhelper.DeviceInfoTable+" WHERE manufacturer = ? AND model = ? AND device_type = ?",
		device.Manufacturer, device.Model, int64(device.Type),
	).Scan(&id); err != nil {
		return nil, storeError("read device info", err)
	}
	return &id, nil
}
