package recordhelper

import (
	"fmt"
	"time"

	"github.com/louisbranch/healthrecords/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
)

// Schema step names recorded in the migration ledger.
const (
	StepRecordTablesV1 = "record_tables_v1"
	StepZoneOffsetV2   = "record_tables_v2_zone_offset"
)

// Registry holds the helper of every supported record type.
type Registry struct {
	helpers map[storage.RecordType]Helper
}

// NewRegistry returns a registry of every supported record type.
func NewRegistry() Registry {
	helpers := []Helper{steps(), heartRate(), weight(), activeCaloriesBurned(), hydration()}
	registry := Registry{helpers: make(map[storage.RecordType]Helper, len(helpers))}
	for _, helper := range helpers {
		registry.helpers[helper.recordType] = helper
	}
	return registry
}

// Helper returns the helper for recordType.
func (r Registry) Helper(recordType storage.RecordType) (Helper, error) {
	helper, ok := r.helpers[recordType]
	if !ok {
		return Helper{}, fmt.Errorf("no record helper for %s", recordType)
	}
	return helper, nil
}

// Table implements request.Tables.
func (r Registry) Table(recordType storage.RecordType) (request.RecordTable, error) {
	return r.Helper(recordType)
}

// Helpers returns every helper in record type order.
func (r Registry) Helpers() []Helper {
	helpers := make([]Helper, 0, len(r.helpers))
	for _, recordType := range storage.RecordTypes() {
		if helper, ok := r.helpers[recordType]; ok {
			helpers = append(helpers, helper)
		}
	}
	return helpers
}

// RetentionDeleteRequests returns one retention delete per record table.
func (r Registry) RetentionDeleteRequests(days int, now time.Time) ([]request.DeleteTableRequest, error) {
	helpers := r.Helpers()
	requests := make([]request.DeleteTableRequest, 0, len(helpers))
	for _, helper := range helpers {
		deleteRequest, err := helper.RetentionDeleteRequest(days, now)
		if err != nil {
			return nil, err
		}
		requests = append(requests, deleteRequest)
	}
	return requests, nil
}

// SchemaSteps returns the record table history in application order.
func (r Registry) SchemaSteps() ([]sqlitemigrate.Step, error) {
	create := sqlitemigrate.Step{Name: StepRecordTablesV1}
	upgrade := sqlitemigrate.Step{Name: StepZoneOffsetV2}
	for _, helper := range r.Helpers() {
		statements, err := helper.createTableRequest().Statements()
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", helper.table, err)
		}
		create.Statements = append(create.Statements, statements...)

		statements, err = helper.zoneOffsetUpgrade()
		if err != nil {
			return nil, err
		}
		upgrade.Statements = append(upgrade.Statements, statements...)
	}
	return []sqlitemigrate.Step{create, upgrade}, nil
}
