package storage

import "time"

// ChangeOperation is the mutation a change-log entry describes.
type ChangeOperation int32

const (
	ChangeOperationUnknown ChangeOperation = iota
	ChangeOperationUpsert
	ChangeOperationDelete
)

// String returns the lower-case operation name.
func (o ChangeOperation) String() string {
	switch o {
	case ChangeOperationUpsert:
		return "upsert"
	case ChangeOperationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ResourceKind separates record entries from medical resource entries.
type ResourceKind int32

const (
	ResourceKindUnknown ResourceKind = iota
	ResourceKindRecord
	ResourceKindMedicalResource
)

// String returns the lower-case kind name.
func (k ResourceKind) String() string {
	switch k {
	case ResourceKindRecord:
		return "record"
	case ResourceKindMedicalResource:
		return "medical_resource"
	default:
		return "unknown"
	}
}

// ChangeLogEntry is one append-only mutation record.
type ChangeLogEntry struct {
	Token       int64
	RecordID    string
	RecordType  RecordType
	Kind        ResourceKind
	Operation   ChangeOperation
	PackageName string
	CreatedAt   time.Time
}

// ChangeLogPage is one page of change-log entries after a token.
type ChangeLogPage struct {
	Entries   []ChangeLogEntry
	NextToken int64
	HasMore   bool
}
