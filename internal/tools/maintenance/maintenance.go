// Package maintenance runs operator tasks against a health record database:
// retention sweeps, change-log reports and schema status.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/healthrecords/internal/platform/config"
	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/platform/pagination"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/sqlite"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath                 string        `env:"HEALTHRECORDS_DB_PATH"`
	RetentionDays          int           `env:"HEALTHRECORDS_RETENTION_DAYS"`
	ChangeLogRetentionDays int           `env:"HEALTHRECORDS_CHANGE_LOG_RETENTION_DAYS"`
	PageSizeDefault        int           `env:"HEALTHRECORDS_PAGE_SIZE_DEFAULT" envDefault:"1000"`
	PageSizeMax            int           `env:"HEALTHRECORDS_PAGE_SIZE_MAX" envDefault:"5000"`
	DeleteBatchSize        int           `env:"HEALTHRECORDS_DELETE_BATCH_SIZE" envDefault:"500"`
	PHREnabled             bool          `env:"HEALTHRECORDS_PHR_ENABLED"`
	Timeout                time.Duration `env:"HEALTHRECORDS_MAINTENANCE_TIMEOUT" envDefault:"10m"`

	ChangeLogReport bool
	ChangeLogSince  time.Duration
	SchemaStatus    bool
	JSONOutput      bool
}

// ParseConfig loads environment defaults from environ, then parses flags.
// A nil environ reads the process environment.
func ParseConfig(fs *flag.FlagSet, args []string, environ map[string]string) (Config, error) {
	var cfg Config
	if err := config.ParseEnviron(&cfg, environ); err != nil {
		return Config{}, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "healthrecords.db")
	}
	cfg.ChangeLogSince = 24 * time.Hour

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to health records sqlite database (default: HEALTHRECORDS_DB_PATH or data/healthrecords.db)")
	fs.IntVar(&cfg.RetentionDays, "retention-days", cfg.RetentionDays, "delete records that started more than this many days ago (0 = skip)")
	fs.IntVar(&cfg.ChangeLogRetentionDays, "change-log-retention-days", cfg.ChangeLogRetentionDays, "prune change-log rows older than this many days during the sweep (0 = keep)")
	fs.IntVar(&cfg.DeleteBatchSize, "delete-batch-size", cfg.DeleteBatchSize, "rows deleted per statement")
	fs.BoolVar(&cfg.ChangeLogReport, "change-log-report", false, "report change-log counts by kind, record type and operation")
	fs.DurationVar(&cfg.ChangeLogSince, "change-log-since", cfg.ChangeLogSince, "window of the change-log report")
	fs.BoolVar(&cfg.SchemaStatus, "schema-status", false, "list applied migrations and schema steps")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("-db-path is required")
	}
	if c.RetentionDays < 0 {
		return errors.New("-retention-days must be >= 0")
	}
	if c.ChangeLogRetentionDays < 0 {
		return errors.New("-change-log-retention-days must be >= 0")
	}
	if c.ChangeLogRetentionDays > 0 && c.RetentionDays == 0 {
		return errors.New("-change-log-retention-days requires -retention-days")
	}
	if c.ChangeLogReport && c.ChangeLogSince <= 0 {
		return errors.New("-change-log-since must be > 0")
	}
	if c.RetentionDays == 0 && !c.ChangeLogReport && !c.SchemaStatus {
		return errors.New("no maintenance task selected: use -retention-days, -change-log-report or -schema-status")
	}
	return nil
}

func (c Config) storeConfig() sqlite.Config {
	return sqlite.Config{
		PageSize: pagination.PageSizeConfig{
			Default: c.PageSizeDefault,
			Max:     c.PageSizeMax,
		},
		DeleteBatchSize:        c.DeleteBatchSize,
		Features:               request.FeatureFlags{PersonalHealthRecord: c.PHREnabled},
		ChangeLogRetentionDays: c.ChangeLogRetentionDays,
	}
}

// Run executes the selected maintenance tasks.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.DBPath, cfg.storeConfig())
	if err != nil {
		return fmt.Errorf("open health store: %w", err)
	}
	return runWithStore(ctx, cfg, store, time.Now().UTC(), out, errOut)
}

// runWithStore runs schema status, the retention sweep and the change-log
// report, in that order, and closes store.
func runWithStore(ctx context.Context, cfg Config, store healthStore, now time.Time, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if store == nil {
		return fmt.Errorf("health store is not configured")
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "Error: close health store: %v\n", closeErr)
		}
	}()

	tasks := []struct {
		mode    string
		enabled bool
		run     func() error
	}{
		{"schema-status", cfg.SchemaStatus, func() error { return runSchemaStatus(ctx, store, cfg.JSONOutput, out) }},
		{"retention", cfg.RetentionDays > 0, func() error {
			return runRetention(ctx, store, cfg.RetentionDays, now, cfg.JSONOutput, out)
		}},
		{"change-log", cfg.ChangeLogReport, func() error {
			return runChangeLogReport(ctx, store, now.Add(-cfg.ChangeLogSince), cfg.JSONOutput, out)
		}},
	}
	for _, task := range tasks {
		if !task.enabled {
			continue
		}
		if err := task.run(); err != nil {
			reportFailure(errOut, task.mode, err, cfg.JSONOutput)
			return err
		}
	}
	return nil
}

type failureReport struct {
	Mode     string `json:"mode"`
	Failed   string `json:"failed"`
	Code     string `json:"code"`
	GRPCCode string `json:"grpc_code"`
	Message  string `json:"message"`
}

// describeFailure classifies err the way an RPC caller of the store would
// see it. Errors without a domain code report as UNKNOWN/Internal.
func describeFailure(mode string, err error) failureReport {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		domainErr = apperrors.Wrap(apperrors.CodeUnknown, mode+" failed", err)
	}
	st := status.Convert(domainErr.ToGRPCStatus("en", err.Error()))
	report := failureReport{
		Mode:     "error",
		Failed:   mode,
		Code:     string(domainErr.Code),
		GRPCCode: st.Code().String(),
		Message:  err.Error(),
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetReason() != "" {
			report.Code = info.GetReason()
		}
	}
	return report
}

func reportFailure(errOut io.Writer, mode string, err error, jsonOutput bool) {
	report := describeFailure(mode, err)
	if jsonOutput {
		if encodeErr := writeJSON(errOut, report); encodeErr != nil {
			fmt.Fprintf(errOut, "Error: %v\n", encodeErr)
		}
		return
	}
	fmt.Fprintf(errOut, "Error: %s failed code=%s grpc=%s: %s\n", report.Failed, report.Code, report.GRPCCode, report.Message)
}

type schemaStatusReport struct {
	Mode    string          `json:"mode"`
	Applied []appliedReport `json:"applied"`
}

type appliedReport struct {
	Name      string    `json:"name"`
	AppliedAt time.Time `json:"applied_at"`
}

func runSchemaStatus(ctx context.Context, store healthStore, jsonOutput bool, out io.Writer) error {
	applied, err := store.SchemaStatus(ctx)
	if err != nil {
		return fmt.Errorf("read schema status: %w", err)
	}

	if jsonOutput {
		report := schemaStatusReport{Mode: "schema-status", Applied: make([]appliedReport, len(applied))}
		for i, migration := range applied {
			report.Applied[i] = appliedReport{Name: migration.Name, AppliedAt: migration.AppliedAt}
		}
		return writeJSON(out, report)
	}

	fmt.Fprintf(out, "Applied migrations: %d\n", len(applied))
	for _, migration := range applied {
		fmt.Fprintf(out, "- %s applied_at=%s\n", migration.Name, migration.AppliedAt.Format(time.RFC3339))
	}
	return nil
}

type retentionReport struct {
	Mode             string    `json:"mode"`
	RetentionDays    int       `json:"retention_days"`
	Cutoff           time.Time `json:"cutoff"`
	DeletedRecords   int       `json:"deleted_records"`
	PrunedChangeLogs int       `json:"pruned_change_logs"`
}

func runRetention(ctx context.Context, store healthStore, days int, now time.Time, jsonOutput bool, out io.Writer) error {
	result, err := store.RunRetentionSweep(ctx, days, now)
	if err != nil {
		return fmt.Errorf("run retention sweep: %w", err)
	}
	cutoff := now.AddDate(0, 0, -days)

	if jsonOutput {
		return writeJSON(out, retentionReport{
			Mode:             "retention",
			RetentionDays:    days,
			Cutoff:           cutoff,
			DeletedRecords:   result.DeletedRecords,
			PrunedChangeLogs: result.PrunedChangeLogs,
		})
	}

	fmt.Fprintf(out, "Retention sweep: deleted=%d pruned_change_logs=%d cutoff=%s\n",
		result.DeletedRecords, result.PrunedChangeLogs, cutoff.Format(time.RFC3339))
	return nil
}

type changeLogReport struct {
	Mode        string           `json:"mode"`
	Since       time.Time        `json:"since"`
	LatestToken int64            `json:"latest_token"`
	Counts      []changeLogCount `json:"counts"`
}

type changeLogCount struct {
	Kind       string `json:"kind"`
	RecordType string `json:"record_type,omitempty"`
	Operation  string `json:"operation"`
	Count      int64  `json:"count"`
}

func runChangeLogReport(ctx context.Context, store healthStore, since time.Time, jsonOutput bool, out io.Writer) error {
	latest, err := store.LatestChangeLogToken(ctx)
	if err != nil {
		return fmt.Errorf("read latest change log token: %w", err)
	}
	counts, err := store.ChangeLogCounts(ctx, since)
	if err != nil {
		return fmt.Errorf("count change logs: %w", err)
	}

	rows := make([]changeLogCount, len(counts))
	for i, count := range counts {
		rows[i] = changeLogCount{
			Kind:      count.Kind.String(),
			Operation: count.Operation.String(),
			Count:     count.Count,
		}
		if count.RecordType.Valid() {
			rows[i].RecordType = count.RecordType.String()
		}
	}

	if jsonOutput {
		return writeJSON(out, changeLogReport{
			Mode:        "change-log",
			Since:       since,
			LatestToken: latest,
			Counts:      rows,
		})
	}

	fmt.Fprintf(out, "Change log since %s: latest_token=%d\n", since.Format(time.RFC3339), latest)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No changes")
		return nil
	}
	for _, row := range rows {
		label := row.Kind
		if row.RecordType != "" {
			label += "/" + row.RecordType
		}
		fmt.Fprintf(out, "- %s %s=%d\n", label, row.Operation, row.Count)
	}
	return nil
}

func writeJSON(out io.Writer, report any) error {
	encoded, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Fprintln(out, string(encoded))
	return nil
}
