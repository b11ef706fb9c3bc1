package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/clause"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
	"go.opentelemetry.io/otel/attribute"
)

const (
	medicalDataSourceTable = "medical_data_source_table"
	medicalResourceTable   = "medical_resource_table"
)

const upsertMedicalResourceQuery = `
INSERT INTO medical_resource_table (
	uuid,
	data_source_uuid,
	resource_type,
	fhir_resource_type,
	fhir_resource_id,
	fhir_version,
	version_id,
	data,
	last_modified_time
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(uuid) DO UPDATE SET
	resource_type = excluded.resource_type,
	fhir_version = excluded.fhir_version,
	version_id = excluded.version_id,
	data = excluded.data,
	last_modified_time = excluded.last_modified_time
`

func (m *TransactionManager) medicalEnabled() error {
	if !m.cfg.Features.PersonalHealthRecord {
		return apperrors.New(apperrors.CodeOperationUnsupported, "personal health records are disabled")
	}
	return nil
}

// CreateMedicalDataSource registers a FHIR server for packageName.
func (m *TransactionManager) CreateMedicalDataSource(ctx context.Context, packageName string, source storage.MedicalDataSource) (storage.MedicalDataSource, error) {
	if err := m.ready(ctx); err != nil {
		return storage.MedicalDataSource{}, err
	}
	if err := m.medicalEnabled(); err != nil {
		return storage.MedicalDataSource{}, err
	}

	source.PackageName = strings.TrimSpace(packageName)
	source.DisplayName = strings.TrimSpace(source.DisplayName)
	source.FHIRBaseURI = strings.TrimSpace(source.FHIRBaseURI)
	if source.PackageName == "" {
		return storage.MedicalDataSource{}, apperrors.New(apperrors.CodeRequestInvalidArgument, "package name is required")
	}
	if source.DisplayName == "" || source.FHIRBaseURI == "" {
		return storage.MedicalDataSource{}, apperrors.New(apperrors.CodeRequestInvalidArgument, "display name and fhir base uri are required")
	}
	if source.ID == "" {
		source.ID = uuid.NewString()
	}
	var lastUpdate int64
	if !source.LastDataUpdateTime.IsZero() {
		lastUpdate = toMillis(source.LastDataUpdateTime)
	}

	err := m.inTransaction(ctx, "create_medical_data_source", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO medical_data_source_table (uuid, package_name, display_name, fhir_base_uri, fhir_version, last_data_update_time)
VALUES (?, ?, ?, ?, ?, ?)
`, source.ID, source.PackageName, source.DisplayName, source.FHIRBaseURI, source.FHIRVersion, lastUpdate)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return storeError("insert medical data source", err)
		}
		return nil
	}, attribute.String("healthrecords.package_name", source.PackageName))
	if err != nil {
		return storage.MedicalDataSource{}, err
	}
	return source, nil
}

// GetMedicalDataSource returns a data source by id.
func (m *TransactionManager) GetMedicalDataSource(ctx context.Context, id string) (storage.MedicalDataSource, error) {
	if err := m.ready(ctx); err != nil {
		return storage.MedicalDataSource{}, err
	}
	if err := m.medicalEnabled(); err != nil {
		return storage.MedicalDataSource{}, err
	}
	return getMedicalDataSource(ctx, m.sqlDB, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMedicalDataSource(ctx context.Context, q queryRower, id string) (storage.MedicalDataSource, error) {
	var (
		source     storage.MedicalDataSource
		lastUpdate int64
	)
	err := q.QueryRowContext(ctx, `
SELECT uuid, package_name, display_name, fhir_base_uri, fhir_version, last_data_update_time
FROM medical_data_source_table
WHERE uuid = ?
`, id).Scan(&source.ID, &source.PackageName, &source.DisplayName, &source.FHIRBaseURI, &source.FHIRVersion, &lastUpdate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MedicalDataSource{}, storage.ErrNotFound
		}
		return storage.MedicalDataSource{}, storeError("get medical data source", err)
	}
	if lastUpdate > 0 {
		source.LastDataUpdateTime = fromMillis(lastUpdate)
	}
	return source, nil
}

// UpsertMedicalResources writes FHIR resources into data sources owned by
// packageName. Every payload is validated before the transaction starts.
func (m *TransactionManager) UpsertMedicalResources(ctx context.Context, packageName string, reqs []request.UpsertMedicalResourceRequest) ([]storage.MedicalResource, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, apperrors.New(apperrors.CodeRequestInvalidArgument, "at least one medical resource is required")
	}

	internal := make([]request.UpsertMedicalResourceInternalRequest, len(reqs))
	for i, req := range reqs {
		converted, err := request.FromUpsertRequest(m.cfg.Features, req)
		if err != nil {
			return nil, err
		}
		internal[i] = converted
	}

	now := m.now()
	resources := make([]storage.MedicalResource, len(internal))
	err := m.inTransaction(ctx, "upsert_medical_resources", func(ctx context.Context, tx *sql.Tx) error {
		owned := make(map[string]bool)
		var entries []storage.ChangeLogEntry
		for i, req := range internal {
			ok, checked := owned[req.DataSourceID]
			if !checked {
				source, err := getMedicalDataSource(ctx, tx, req.DataSourceID)
				if err != nil {
					return err
				}
				ok = source.PackageName == packageName
				owned[req.DataSourceID] = ok
			}
			if !ok {
				return storage.ErrNotFound
			}

			result, err := tx.ExecContext(ctx, upsertMedicalResourceQuery,
				req.ID,
				req.DataSourceID,
				int64(req.Type),
				req.FHIRResourceType,
				req.FHIRResourceID,
				req.FHIRVersion,
				req.VersionID,
				req.Data,
				toMillis(now),
			)
			if err != nil {
				return storeError("upsert medical resource", err)
			}
			if changed, err := result.RowsAffected(); err != nil {
				return storeError("upsert medical resource", err)
			} else if changed > 0 {
				entries = append(entries, storage.ChangeLogEntry{
					RecordID:    req.ID,
					Kind:        storage.ResourceKindMedicalResource,
					Operation:   storage.ChangeOperationUpsert,
					PackageName: packageName,
					CreatedAt:   now,
				})
			}

			resources[i] = storage.MedicalResource{
				ID:               req.ID,
				DataSourceID:     req.DataSourceID,
				Type:             req.Type,
				FHIRResourceType: req.FHIRResourceType,
				FHIRResourceID:   req.FHIRResourceID,
				FHIRVersion:      req.FHIRVersion,
				VersionID:        req.VersionID,
				Data:             req.Data,
				LastModifiedTime: now,
			}
		}

		for sourceID := range owned {
			if _, err := tx.ExecContext(ctx,
				"UPDATE medical_data_source_table SET last_data_update_time = ? WHERE uuid = ?",
				toMillis(now), sourceID,
			); err != nil {
				return storeError("touch medical data source", err)
			}
		}
		return appendChangeLogs(ctx, tx, entries)
	}, attribute.String("healthrecords.package_name", packageName))
	if err != nil {
		return nil, err
	}
	return resources, nil
}

// ReadMedicalResourcesByIDs returns the stored resources among ids whose data
// source belongs to packageName. Unknown and foreign ids are skipped, as they
// are by DeleteMedicalResourcesByIDs.
func (m *TransactionManager) ReadMedicalResourcesByIDs(ctx context.Context, packageName string, ids []string) ([]storage.MedicalResource, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	if err := m.medicalEnabled(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	where := clause.New(clause.And).In("uuid", ids)
	rows, err := m.sqlDB.QueryContext(ctx, `
SELECT uuid, data_source_uuid, resource_type, fhir_resource_type, fhir_resource_id, fhir_version, version_id, data, last_modified_time
FROM medical_resource_table
`+where.String()+`
AND data_source_uuid IN (SELECT uuid FROM `+medicalDataSourceTable+` WHERE package_name = ?)
ORDER BY row_id ASC
`, packageName)
	if err != nil {
		return nil, storeError("read medical resources", err)
	}
	defer rows.Close()

	var resources []storage.MedicalResource
	for rows.Next() {
		var (
			resource     storage.MedicalResource
			resourceType int64
			modified     int64
		)
		if err := rows.Scan(
			&resource.ID,
			&resource.DataSourceID,
			&resourceType,
			&resource.FHIRResourceType,
			&resource.FHIRResourceID,
			&resource.FHIRVersion,
			&resource.VersionID,
			&resource.Data,
			&modified,
		); err != nil {
			return nil, storeError("scan medical resource", err)
		}
		resource.Type = storage.MedicalResourceType(resourceType)
		resource.LastModifiedTime = fromMillis(modified)
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate medical resources", err)
	}
	return resources, nil
}

// DeleteMedicalResourcesByIDs deletes resources whose data source belongs to
// packageName and returns how many were removed.
func (m *TransactionManager) DeleteMedicalResourcesByIDs(ctx context.Context, packageName string, ids []string) (int, error) {
	if err := m.ready(ctx); err != nil {
		return 0, err
	}
	if err := m.medicalEnabled(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int
	err := m.inTransaction(ctx, "delete_medical_resources", func(ctx context.Context, tx *sql.Tx) error {
		sources, err := ownedDataSources(ctx, tx, packageName)
		if err != nil {
			return err
		}
		tableRequest := request.NewDeleteTableRequest(medicalResourceTable, storage.RecordTypeUnknown).
			WithWhere(clause.New(clause.And).In("data_source_uuid", sources)).
			WithIDs("uuid", ids)
		deleted, err = m.deleteTable(ctx, tx, tableRequest, packageName, storage.ResourceKindMedicalResource)
		return err
	}, attribute.String("healthrecords.package_name", packageName))
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func ownedDataSources(ctx context.Context, tx *sql.Tx, packageName string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT uuid FROM "+medicalDataSourceTable+" WHERE package_name = ?", packageName)
	if err != nil {
		return nil, storeError("read owned data sources", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeError("scan data source", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate data sources", err)
	}
	return ids, nil
}
