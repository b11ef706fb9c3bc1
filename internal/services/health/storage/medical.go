package storage

import "time"

// MedicalResourceType classifies a FHIR resource for permission purposes.
type MedicalResourceType int32

const (
	MedicalResourceTypeUnknown MedicalResourceType = iota
	MedicalResourceTypeAllergiesIntolerances
	MedicalResourceTypeConditions
	MedicalResourceTypeImmunizations
	MedicalResourceTypeLaboratoryResults
	MedicalResourceTypeMedications
	MedicalResourceTypePersonalDetails
	MedicalResourceTypePractitionerDetails
	MedicalResourceTypePregnancy
	MedicalResourceTypeProcedures
	MedicalResourceTypeSocialHistory
	MedicalResourceTypeVisits
	MedicalResourceTypeVitalSigns
)

// MedicalDataSource is the owner of a set of medical resources.
type MedicalDataSource struct {
	ID                 string
	PackageName        string
	DisplayName        string
	FHIRBaseURI        string
	FHIRVersion        string
	LastDataUpdateTime time.Time
}

// MedicalResource is one stored FHIR document.
type MedicalResource struct {
	ID               string
	DataSourceID     string
	Type             MedicalResourceType
	FHIRResourceType string
	FHIRResourceID   string
	FHIRVersion      string
	VersionID        string
	Data             string
	LastModifiedTime time.Time
}

var medicalResourceTypeNames = map[MedicalResourceType]string{
	MedicalResourceTypeAllergiesIntolerances: "allergies_intolerances",
	MedicalResourceTypeConditions:            "conditions",
	MedicalResourceTypeImmunizations:         "immunizations",
	MedicalResourceTypeLaboratoryResults:     "laboratory_results",
	MedicalResourceTypeMedications:           "medications",
	MedicalResourceTypePersonalDetails:       "personal_details",
	MedicalResourceTypePractitionerDetails:   "practitioner_details",
	MedicalResourceTypePregnancy:             "pregnancy",
	MedicalResourceTypeProcedures:            "procedures",
	MedicalResourceTypeSocialHistory:         "social_history",
	MedicalResourceTypeVisits:                "visits",
	MedicalResourceTypeVitalSigns:            "vital_signs",
}

// String returns the snake_case classification name.
func (t MedicalResourceType) String() string {
	if name, ok := medicalResourceTypeNames[t]; ok {
		return name
	}
	return "unknown"
}
