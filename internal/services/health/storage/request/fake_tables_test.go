package request

import (
	"fmt"

	"github.com/louisbranch/healthrecords/internal/services/health/storage"
)

type fakeTable struct {
	recordType storage.RecordType
	name       string
	columns    []string
}

func (t fakeTable) RecordType() storage.RecordType { return t.recordType }
func (t fakeTable) TableName() string              { return t.name }
func (t fakeTable) PayloadColumns() []string       { return t.columns }

func (t fakeTable) PayloadValues(payload storage.Payload) ([]any, error) {
	switch p := payload.(type) {
	case storage.Steps:
		return []any{p.Count}, nil
	case storage.HeartRate:
		return []any{p.BeatsPerMinute}, nil
	default:
		return nil, fmt.Errorf("unsupported payload %T", payload)
	}
}

type fakeTables map[storage.RecordType]fakeTable

func (f fakeTables) Table(recordType storage.RecordType) (RecordTable, error) {
	table, ok := f[recordType]
	if !ok {
		return nil, fmt.Errorf("no table for %s", recordType)
	}
	return table, nil
}

func testTables() fakeTables {
	return fakeTables{
		storage.RecordTypeSteps:     {recordType: storage.RecordTypeSteps, name: "steps_record_table", columns: []string{"count"}},
		storage.RecordTypeHeartRate: {recordType: storage.RecordTypeHeartRate, name: "heart_rate_record_table", columns: []string{"beats_per_minute"}},
	}
}
