package request

import (
	"github.com/google/uuid"
	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/fhir"
)

// medicalResourceNamespace scopes name-based medical resource ids.
var medicalResourceNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("medical.healthrecords"))

// FeatureFlags gates optional storage capabilities.
type FeatureFlags struct {
	PersonalHealthRecord bool
}

// UpsertMedicalResourceRequest is a caller's FHIR resource write.
type UpsertMedicalResourceRequest struct {
	DataSourceID string
	FHIRVersion  string
	Data         string
}

// UpsertMedicalResourceInternalRequest is a validated medical resource write.
type UpsertMedicalResourceInternalRequest struct {
	ID               string
	DataSourceID     string
	FHIRVersion      string
	FHIRResourceType string
	FHIRResourceID   string
	VersionID        string
	Type             storage.MedicalResourceType
	Data             string
}

// FromUpsertRequest validates req and extracts the resource identity from
// its payload. It fails with an unsupported operation error whenever personal
// health records are disabled.
func FromUpsertRequest(flags FeatureFlags, req UpsertMedicalResourceRequest) (UpsertMedicalResourceInternalRequest, error) {
	if !flags.PersonalHealthRecord {
		return UpsertMedicalResourceInternalRequest{}, apperrors.New(apperrors.CodeOperationUnsupported, "personal health records are disabled")
	}
	if _, err := uuid.Parse(req.DataSourceID); err != nil {
		return UpsertMedicalResourceInternalRequest{}, apperrors.WrapWithMetadata(apperrors.CodeRequestInvalidArgument,
			"data source id must be a uuid", map[string]string{"data_source_id": req.DataSourceID}, err)
	}

	resource, err := fhir.Extract(req.Data)
	if err != nil {
		return UpsertMedicalResourceInternalRequest{}, err
	}

	return UpsertMedicalResourceInternalRequest{
		ID:               MedicalResourceID(req.DataSourceID, resource.ResourceType, resource.ID),
		DataSourceID:     req.DataSourceID,
		FHIRVersion:      req.FHIRVersion,
		FHIRResourceType: resource.ResourceType,
		FHIRResourceID:   resource.ID,
		VersionID:        resource.VersionID,
		Type:             resource.Type,
		Data:             req.Data,
	}, nil
}

// MedicalResourceID derives the id of a FHIR resource within a data source.
func MedicalResourceID(dataSourceID, fhirResourceType, fhirResourceID string) string {
	name := dataSourceID + "/" + fhirResourceType + "/" + fhirResourceID
	return uuid.NewSHA1(medicalResourceNamespace, []byte(name)).String()
}
