// Package errors provides structured error handling for the health record storage layer.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Schema evolution errors
	CodeSchemaIndexColumnsEmpty      Code = "SCHEMA_INDEX_COLUMNS_EMPTY"
	CodeSchemaNotNullWithoutDefault  Code = "SCHEMA_NOT_NULL_WITHOUT_DEFAULT"
	CodeSchemaInvalidIdentifier      Code = "SCHEMA_INVALID_IDENTIFIER"
	CodeSchemaInvalidColumnType      Code = "SCHEMA_INVALID_COLUMN_TYPE"
	CodeSchemaTableColumnsEmpty      Code = "SCHEMA_TABLE_COLUMNS_EMPTY"
	CodeSchemaAlterTableColumnsEmpty Code = "SCHEMA_ALTER_TABLE_COLUMNS_EMPTY"

	// Request builder errors
	CodeRequestWrongMode         Code = "REQUEST_WRONG_MODE"
	CodeRequestInvalidArgument   Code = "REQUEST_INVALID_ARGUMENT"
	CodeRequestUnknownRecordType Code = "REQUEST_UNKNOWN_RECORD_TYPE"
	CodePageTokenInvalid         Code = "PAGE_TOKEN_INVALID"
	CodeFilterInvalid            Code = "FILTER_INVALID"

	// Medical resource errors
	CodePayloadMalformed     Code = "PAYLOAD_MALFORMED"
	CodeOperationUnsupported Code = "OPERATION_UNSUPPORTED"

	// Storage errors
	CodeNotFound       Code = "NOT_FOUND"
	CodeStoreExecution Code = "STORE_EXECUTION"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeSchemaIndexColumnsEmpty,
		CodeSchemaNotNullWithoutDefault,
		CodeSchemaInvalidIdentifier,
		CodeSchemaInvalidColumnType,
		CodeSchemaTableColumnsEmpty,
		CodeSchemaAlterTableColumnsEmpty,
		CodeRequestInvalidArgument,
		CodeRequestUnknownRecordType,
		CodePageTokenInvalid,
		CodeFilterInvalid,
		CodePayloadMalformed:
		return codes.InvalidArgument

	// FailedPrecondition - the caller used the wrong entry point for the request
	case CodeRequestWrongMode:
		return codes.FailedPrecondition

	// Unimplemented - capability disabled for this deployment
	case CodeOperationUnsupported:
		return codes.Unimplemented

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}

// IsValidation reports whether the code describes API misuse detected before
// any statement reached the store.
func (c Code) IsValidation() bool {
	switch c.GRPCCode() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.Unimplemented:
		return true
	default:
		return false
	}
}
