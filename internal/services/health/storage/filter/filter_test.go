package filter

import (
	"testing"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
)

func TestParseRecordFilterEmpty(t *testing.T) {
	where, err := ParseRecordFilter("   ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !where.IsEmpty() {
		t.Fatalf("expected empty clause, got %q", where.String())
	}
}

func TestParseRecordFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   string
	}{
		{
			name:   "data origin",
			filter: `data_origin = "com.example.app"`,
			want:   "package_name = 'com.example.app'",
		},
		{
			name:   "client record id not equal",
			filter: `client_record_id != "abc"`,
			want:   "client_record_id != 'abc'",
		},
		{
			name:   "time range",
			filter: `start_time >= timestamp("2026-01-01T00:00:00Z") AND end_time < timestamp("2026-01-02T00:00:00Z")`,
			want:   "start_time >= 1767225600000 AND end_time < 1767312000000",
		},
		{
			name:   "either origin",
			filter: `data_origin = "a" OR data_origin = "b"`,
			want:   "package_name = 'a' OR package_name = 'b'",
		},
		{
			name:   "origin group and time",
			filter: `(data_origin = "a" OR data_origin = "b") AND start_time > timestamp("2026-01-01T00:00:00Z")`,
			want:   "(package_name = 'a' OR package_name = 'b') AND start_time > 1767225600000",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			where, err := ParseRecordFilter(tc.filter)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.filter, err)
			}
			if got := where.Fragment(); got != tc.want {
				t.Fatalf("Fragment() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseRecordFilterRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		filter string
	}{
		{name: "unknown field", filter: `heart = "x"`},
		{name: "syntax", filter: `data_origin = `},
		{name: "string ordering", filter: `data_origin > "a"`},
		{name: "timestamp not equal", filter: `start_time != timestamp("2026-01-01T00:00:00Z")`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRecordFilter(tc.filter)
			if !apperrors.HasCode(err, apperrors.CodeFilterInvalid) {
				t.Fatalf("ParseRecordFilter(%q) error = %v, want %s", tc.filter, err, apperrors.CodeFilterInvalid)
			}
		})
	}
}
