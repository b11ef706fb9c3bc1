// Package fhir extracts identity and classification from FHIR JSON resources.
package fhir

import (
	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/tidwall/gjson"
)

// Resource is the metadata extracted from one FHIR document.
type Resource struct {
	ResourceType string
	ID           string
	VersionID    string
	Type         storage.MedicalResourceType
}

// Observation category codes.
const (
	categoryVitalSigns    = "vital-signs"
	categoryLaboratory    = "laboratory"
	categorySocialHistory = "social-history"
)

// pregnancyCodes are LOINC codes that classify an observation as pregnancy
// data regardless of its category.
var pregnancyCodes = map[string]bool{
	"82810-3": true, // Pregnancy status
	"11449-6": true, // Pregnancy status - Reported
	"11778-8": true, // Delivery date Estimated
	"11636-8": true, // Births.live
	"11612-9": true, // Abortions
	"11640-0": true, // Births total
	"11884-4": true, // Gestational age Estimated
	"49051-6": true, // Gestational age in weeks
	"8665-2":  true, // Last menstrual period start date
	"33065-4": true, // Ectopic pregnancy
}

var resourceTypeClassification = map[string]storage.MedicalResourceType{
	"Immunization":        storage.MedicalResourceTypeImmunizations,
	"AllergyIntolerance":  storage.MedicalResourceTypeAllergiesIntolerances,
	"Condition":           storage.MedicalResourceTypeConditions,
	"Procedure":           storage.MedicalResourceTypeProcedures,
	"Medication":          storage.MedicalResourceTypeMedications,
	"MedicationRequest":   storage.MedicalResourceTypeMedications,
	"MedicationStatement": storage.MedicalResourceTypeMedications,
	"Patient":             storage.MedicalResourceTypePersonalDetails,
	"Practitioner":        storage.MedicalResourceTypePractitionerDetails,
	"PractitionerRole":    storage.MedicalResourceTypePractitionerDetails,
	"Encounter":           storage.MedicalResourceTypeVisits,
	"Location":            storage.MedicalResourceTypeVisits,
	"Organization":        storage.MedicalResourceTypeVisits,
}

// Extract parses a FHIR JSON resource and classifies it.
func Extract(data string) (Resource, error) {
	if !gjson.Valid(data) {
		return Resource{}, apperrors.New(apperrors.CodePayloadMalformed, "fhir resource is not valid json")
	}
	root := gjson.Parse(data)
	if !root.IsObject() {
		return Resource{}, apperrors.New(apperrors.CodePayloadMalformed, "fhir resource must be a json object")
	}

	resourceType := root.Get("resourceType")
	if resourceType.Type != gjson.String || resourceType.Str == "" {
		return Resource{}, apperrors.New(apperrors.CodePayloadMalformed, "fhir resource is missing resourceType")
	}
	id := root.Get("id")
	if id.Type != gjson.String || id.Str == "" {
		return Resource{}, apperrors.WithMetadata(apperrors.CodePayloadMalformed, "fhir resource is missing id",
			map[string]string{"resource_type": resourceType.Str})
	}

	classification, err := classify(resourceType.Str, root)
	if err != nil {
		return Resource{}, err
	}

	return Resource{
		ResourceType: resourceType.Str,
		ID:           id.Str,
		VersionID:    root.Get("meta.versionId").String(),
		Type:         classification,
	}, nil
}

func classify(resourceType string, root gjson.Result) (storage.MedicalResourceType, error) {
	if resourceType == "Observation" {
		return classifyObservation(root)
	}
	if classification, ok := resourceTypeClassification[resourceType]; ok {
		return classification, nil
	}
	return storage.MedicalResourceTypeUnknown, apperrors.WithMetadata(apperrors.CodeRequestInvalidArgument,
		"unsupported fhir resource type", map[string]string{"resource_type": resourceType})
}

func classifyObservation(root gjson.Result) (storage.MedicalResourceType, error) {
	for _, coding := range root.Get("code.coding").Array() {
		if pregnancyCodes[coding.Get("code").String()] {
			return storage.MedicalResourceTypePregnancy, nil
		}
	}

	for _, category := range root.Get("category").Array() {
		for _, coding := range category.Get("coding").Array() {
			switch coding.Get("code").String() {
			case categoryVitalSigns:
				return storage.MedicalResourceTypeVitalSigns, nil
			case categoryLaboratory:
				return storage.MedicalResourceTypeLaboratoryResults, nil
			case categorySocialHistory:
				return storage.MedicalResourceTypeSocialHistory, nil
			}
		}
	}
	return storage.MedicalResourceTypeUnknown, apperrors.New(apperrors.CodeRequestInvalidArgument,
		"observation category is not supported")
}
