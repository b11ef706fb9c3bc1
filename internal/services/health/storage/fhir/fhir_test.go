package fhir

import (
	"testing"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
)

func TestExtractImmunization(t *testing.T) {
	resource, err := Extract(`{"resourceType":"Immunization","id":"imm-1","meta":{"versionId":"3"},"status":"completed"}`)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := Resource{
		ResourceType: "Immunization",
		ID:           "imm-1",
		VersionID:    "3",
		Type:         storage.MedicalResourceTypeImmunizations,
	}
	if resource != want {
		t.Fatalf("Extract() = %+v, want %+v", resource, want)
	}
}

func TestExtractClassification(t *testing.T) {
	tests := []struct {
		name string
		data string
		want storage.MedicalResourceType
	}{
		{
			name: "allergy",
			data: `{"resourceType":"AllergyIntolerance","id":"a"}`,
			want: storage.MedicalResourceTypeAllergiesIntolerances,
		},
		{
			name: "medication statement",
			data: `{"resourceType":"MedicationStatement","id":"m"}`,
			want: storage.MedicalResourceTypeMedications,
		},
		{
			name: "patient",
			data: `{"resourceType":"Patient","id":"p"}`,
			want: storage.MedicalResourceTypePersonalDetails,
		},
		{
			name: "encounter",
			data: `{"resourceType":"Encounter","id":"e"}`,
			want: storage.MedicalResourceTypeVisits,
		},
		{
			name: "vital signs",
			data: `{"resourceType":"Observation","id":"o","category":[{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/observation-category","code":"vital-signs"}]}]}`,
			want: storage.MedicalResourceTypeVitalSigns,
		},
		{
			name: "laboratory",
			data: `{"resourceType":"Observation","id":"o","category":[{"coding":[{"code":"laboratory"}]}]}`,
			want: storage.MedicalResourceTypeLaboratoryResults,
		},
		{
			name: "social history",
			data: `{"resourceType":"Observation","id":"o","category":[{"coding":[{"code":"social-history"}]}]}`,
			want: storage.MedicalResourceTypeSocialHistory,
		},
		{
			name: "pregnancy wins over category",
			data: `{"resourceType":"Observation","id":"o","code":{"coding":[{"system":"http://loinc.org","code":"82810-3"}]},"category":[{"coding":[{"code":"social-history"}]}]}`,
			want: storage.MedicalResourceTypePregnancy,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resource, err := Extract(tc.data)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if resource.Type != tc.want {
				t.Fatalf("Type = %v, want %v", resource.Type, tc.want)
			}
		})
	}
}

func TestExtractMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{"resourceType":`},
		{name: "array", data: `[1,2]`},
		{name: "missing type", data: `{"id":"x"}`},
		{name: "numeric type", data: `{"resourceType":5,"id":"x"}`},
		{name: "missing id", data: `{"resourceType":"Immunization"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Extract(tc.data)
			if !apperrors.HasCode(err, apperrors.CodePayloadMalformed) {
				t.Fatalf("Extract() error = %v, want %s", err, apperrors.CodePayloadMalformed)
			}
		})
	}
}

func TestExtractUnsupported(t *testing.T) {
	tests := []string{
		`{"resourceType":"Claim","id":"c"}`,
		`{"resourceType":"Observation","id":"o","category":[{"coding":[{"code":"imaging"}]}]}`,
	}
	for _, data := range tests {
		_, err := Extract(data)
		if !apperrors.HasCode(err, apperrors.CodeRequestInvalidArgument) {
			t.Fatalf("Extract(%s) error = %v, want %s", data, err, apperrors.CodeRequestInvalidArgument)
		}
	}
}
