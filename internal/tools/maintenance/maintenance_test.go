package maintenance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	sqlitemigrate "github.com/louisbranch/healthrecords/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/sqlite"
)

var testNow = time.Date(2026, time.April, 1, 8, 0, 0, 0, time.UTC)

type fakeStore struct {
	applied      []sqlitemigrate.AppliedMigration
	retention    sqlite.RetentionResult
	retentionErr error
	counts       []sqlite.ChangeLogCount
	latest       int64
	closed       bool
	closeErr     error
	sweptDays    int
}

func (f *fakeStore) SchemaStatus(context.Context) ([]sqlitemigrate.AppliedMigration, error) {
	return f.applied, nil
}

func (f *fakeStore) RunRetentionSweep(_ context.Context, days int, _ time.Time) (sqlite.RetentionResult, error) {
	f.sweptDays = days
	return f.retention, f.retentionErr
}

func (f *fakeStore) ChangeLogCounts(context.Context, time.Time) ([]sqlite.ChangeLogCount, error) {
	return f.counts, nil
}

func (f *fakeStore) LatestChangeLogToken(context.Context) (int64, error) {
	return f.latest, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return f.closeErr
}

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, map[string]string{})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != filepath.Join("data", "healthrecords.db") {
		t.Fatalf("db path = %q, want default", cfg.DBPath)
	}
	if cfg.Timeout != 10*time.Minute {
		t.Fatalf("timeout = %v, want 10m", cfg.Timeout)
	}
	if cfg.DeleteBatchSize != 500 || cfg.PageSizeDefault != 1000 || cfg.PageSizeMax != 5000 {
		t.Fatalf("cfg = %+v, want env defaults", cfg)
	}
	if cfg.ChangeLogSince != 24*time.Hour {
		t.Fatalf("change log since = %v, want 24h", cfg.ChangeLogSince)
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-retention-days", "90", "-json"}, map[string]string{
		"HEALTHRECORDS_DB_PATH":                   "/var/lib/health.db",
		"HEALTHRECORDS_RETENTION_DAYS":            "30",
		"HEALTHRECORDS_CHANGE_LOG_RETENTION_DAYS": "7",
		"HEALTHRECORDS_PHR_ENABLED":               "true",
		"HEALTHRECORDS_MAINTENANCE_TIMEOUT":       "2m",
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/var/lib/health.db" {
		t.Fatalf("db path = %q, want env value", cfg.DBPath)
	}
	if cfg.RetentionDays != 90 {
		t.Fatalf("retention days = %d, want flag override 90", cfg.RetentionDays)
	}
	if cfg.ChangeLogRetentionDays != 7 || !cfg.PHREnabled || !cfg.JSONOutput {
		t.Fatalf("cfg = %+v, want env values and json", cfg)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Fatalf("timeout = %v, want 2m", cfg.Timeout)
	}

	storeCfg := cfg.storeConfig()
	if !storeCfg.Features.PersonalHealthRecord || storeCfg.ChangeLogRetentionDays != 7 {
		t.Fatalf("store config = %+v, want env values", storeCfg)
	}
}

func TestParseConfigRejectsBadEnv(t *testing.T) {
	fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil, map[string]string{"HEALTHRECORDS_RETENTION_DAYS": "forever"}); err == nil {
		t.Fatal("expected error for invalid retention days")
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{DBPath: "health.db", ChangeLogSince: time.Hour}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "no task", mutate: func(*Config) {}, wantErr: "no maintenance task"},
		{name: "empty path", mutate: func(c *Config) { c.DBPath = " "; c.SchemaStatus = true }, wantErr: "-db-path"},
		{name: "negative retention", mutate: func(c *Config) { c.RetentionDays = -1 }, wantErr: "-retention-days"},
		{name: "change log retention alone", mutate: func(c *Config) { c.ChangeLogRetentionDays = 3; c.SchemaStatus = true }, wantErr: "requires -retention-days"},
		{name: "empty report window", mutate: func(c *Config) { c.ChangeLogReport = true; c.ChangeLogSince = 0 }, wantErr: "-change-log-since"},
		{name: "schema status", mutate: func(c *Config) { c.SchemaStatus = true }},
		{name: "retention", mutate: func(c *Config) { c.RetentionDays = 30; c.ChangeLogRetentionDays = 7 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestRunWithStoreTextReports(t *testing.T) {
	store := &fakeStore{
		applied:   []sqlitemigrate.AppliedMigration{{Name: "001_shared_tables.sql", AppliedAt: testNow}},
		retention: sqlite.RetentionResult{DeletedRecords: 4, PrunedChangeLogs: 2},
		counts: []sqlite.ChangeLogCount{
			{Kind: storage.ResourceKindRecord, RecordType: storage.RecordTypeSteps, Operation: storage.ChangeOperationDelete, Count: 4},
			{Kind: storage.ResourceKindMedicalResource, Operation: storage.ChangeOperationUpsert, Count: 1},
		},
		latest: 12,
	}
	cfg := Config{SchemaStatus: true, RetentionDays: 30, ChangeLogReport: true, ChangeLogSince: time.Hour}

	var out bytes.Buffer
	if err := runWithStore(context.Background(), cfg, store, testNow, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !store.closed {
		t.Fatal("expected store to be closed")
	}
	if store.sweptDays != 30 {
		t.Fatalf("swept days = %d, want 30", store.sweptDays)
	}
	for _, want := range []string{
		"Applied migrations: 1",
		"- 001_shared_tables.sql",
		"Retention sweep: deleted=4 pruned_change_logs=2",
		"latest_token=12",
		"- record/steps delete=4",
		"- medical_resource upsert=1",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunWithStoreJSONReport(t *testing.T) {
	store := &fakeStore{retention: sqlite.RetentionResult{DeletedRecords: 3}}
	cfg := Config{RetentionDays: 10, JSONOutput: true}

	var out bytes.Buffer
	if err := runWithStore(context.Background(), cfg, store, testNow, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	var report retentionReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Mode != "retention" || report.DeletedRecords != 3 || report.RetentionDays != 10 {
		t.Fatalf("report = %+v, want retention report", report)
	}
	if !report.Cutoff.Equal(testNow.AddDate(0, 0, -10)) {
		t.Fatalf("cutoff = %v, want 10 days before %v", report.Cutoff, testNow)
	}
}

func TestRunWithStoreErrors(t *testing.T) {
	store := &fakeStore{retentionErr: errors.New("boom"), closeErr: errors.New("close failed")}
	var errOut bytes.Buffer
	err := runWithStore(context.Background(), Config{RetentionDays: 1}, store, testNow, nil, &errOut)
	if err == nil || !strings.Contains(err.Error(), "run retention sweep") {
		t.Fatalf("err = %v, want retention error", err)
	}
	for _, want := range []string{
		"Error: retention failed code=UNKNOWN grpc=Internal: run retention sweep: boom",
		"close health store",
	} {
		if !strings.Contains(errOut.String(), want) {
			t.Fatalf("errOut = %q, want containing %q", errOut.String(), want)
		}
	}

	if err := runWithStore(context.Background(), Config{SchemaStatus: true}, nil, testNow, nil, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestRunWithStoreJSONFailureReport(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCode     string
		wantGRPCCode string
	}{
		{
			name:         "validation",
			err:          apperrors.New(apperrors.CodeRequestInvalidArgument, "retention days must be positive"),
			wantCode:     "REQUEST_INVALID_ARGUMENT",
			wantGRPCCode: "InvalidArgument",
		},
		{
			name:         "store failure",
			err:          apperrors.Wrap(apperrors.CodeStoreExecution, "begin transaction", errors.New("database is locked")),
			wantCode:     "STORE_EXECUTION",
			wantGRPCCode: "Internal",
		},
		{
			name:         "unclassified",
			err:          errors.New("disk full"),
			wantCode:     "UNKNOWN",
			wantGRPCCode: "Internal",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{retentionErr: tc.err}
			var out, errOut bytes.Buffer
			err := runWithStore(context.Background(), Config{RetentionDays: 7, JSONOutput: true}, store, testNow, &out, &errOut)
			if !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want wrapping %v", err, tc.err)
			}
			if out.Len() != 0 {
				t.Fatalf("out = %q, want empty", out.String())
			}
			var report failureReport
			if err := json.Unmarshal(errOut.Bytes(), &report); err != nil {
				t.Fatalf("decode failure report %q: %v", errOut.String(), err)
			}
			if report.Mode != "error" || report.Failed != "retention" {
				t.Fatalf("report = %+v, want failed retention", report)
			}
			if report.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", report.Code, tc.wantCode)
			}
			if report.GRPCCode != tc.wantGRPCCode {
				t.Fatalf("grpc code = %q, want %q", report.GRPCCode, tc.wantGRPCCode)
			}
		})
	}
}

func TestRunAgainstSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.db")
	now := time.Now().UTC()
	store, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	req, err := request.NewUpsertTransactionRequest("com.example.fitness", []storage.Record{
		{ClientRecordID: "old", StartTime: now.AddDate(0, 0, -60), Payload: storage.Steps{Count: 10}},
		{ClientRecordID: "new", StartTime: now.Add(-time.Hour), Payload: storage.Steps{Count: 20}},
	}, store.Tables(), request.UpsertOptions{GenerateIDs: true, Now: now})
	if err != nil {
		t.Fatalf("build upsert: %v", err)
	}
	if _, err := store.UpsertAll(context.Background(), req); err != nil {
		t.Fatalf("upsert all: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	cfg := Config{
		DBPath:          path,
		RetentionDays:   30,
		DeleteBatchSize: 500,
		SchemaStatus:    true,
		JSONOutput:      true,
	}
	var out bytes.Buffer
	if err := Run(context.Background(), cfg, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output lines = %d, want 2:\n%s", len(lines), out.String())
	}
	var status schemaStatusReport
	if err := json.Unmarshal([]byte(lines[0]), &status); err != nil {
		t.Fatalf("decode schema status: %v", err)
	}
	if len(status.Applied) != 4 {
		t.Fatalf("applied = %d, want 4", len(status.Applied))
	}
	var retention retentionReport
	if err := json.Unmarshal([]byte(lines[1]), &retention); err != nil {
		t.Fatalf("decode retention: %v", err)
	}
	if retention.DeletedRecords != 1 {
		t.Fatalf("deleted records = %d, want 1", retention.DeletedRecords)
	}
}
