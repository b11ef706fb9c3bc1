package sqlite

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/platform/pagination"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
)

// readAllPages follows page tokens until the sequence ends and returns the
// ids in page order.
func readAllPages(t *testing.T, manager *TransactionManager, f request.ReadFilter) ([]string, int) {
	t.Helper()
	var (
		ids   []string
		pages int
	)
	for {
		req, err := request.NewReadByFilter(testPackage, f, manager.PageSizeConfig())
		if err != nil {
			t.Fatalf("build read page %d: %v", pages, err)
		}
		page, err := manager.ReadRecordsAndPageToken(context.Background(), req)
		if err != nil {
			t.Fatalf("read page %d: %v", pages, err)
		}
		pages++
		for _, record := range page.Records {
			ids = append(ids, record.ID)
		}
		if page.NextPageToken == "" {
			return ids, pages
		}
		if pages > 10 {
			t.Fatal("page sequence did not terminate")
		}
		f.PageToken = page.NextPageToken
	}
}

func TestReadPagesWithEqualStartTimes(t *testing.T) {
	t0 := testNow.Add(-3 * time.Hour)
	t1 := testNow.Add(-2 * time.Hour)
	t2 := testNow.Add(-time.Hour)

	tests := []struct {
		name   string
		starts []time.Time
		order  pagination.SortOrder
		want   []int
		pages  int
	}{
		{
			name:   "ascending ties",
			starts: []time.Time{t0, t0, t0, t1, t2},
			order:  pagination.SortOrderAscending,
			want:   []int{0, 1, 2, 3, 4},
			pages:  3,
		},
		{
			name:   "ascending all on one boundary",
			starts: []time.Time{t0, t0, t0, t0, t0},
			order:  pagination.SortOrderAscending,
			want:   []int{0, 1, 2, 3, 4},
			pages:  3,
		},
		{
			name:   "descending ties",
			starts: []time.Time{t0, t0, t0, t1, t2},
			order:  pagination.SortOrderDescending,
			want:   []int{4, 3, 2, 1, 0},
			pages:  3,
		},
		{
			name:   "exact page multiple",
			starts: []time.Time{t0, t1, t2, t2},
			order:  pagination.SortOrderUnspecified,
			want:   []int{0, 1, 2, 3},
			pages:  2,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			manager := openTestManager(t, DefaultConfig())
			records := make([]storage.Record, len(tc.starts))
			for i, start := range tc.starts {
				records[i] = stepsAt("walk-"+string(rune('a'+i)), start, int64(i))
			}
			ids := upsertRecords(t, manager, testPackage, records...)

			got, pages := readAllPages(t, manager, request.ReadFilter{
				RecordType: storage.RecordTypeSteps,
				PageSize:   2,
				Order:      tc.order,
			})
			if len(got) != len(tc.want) {
				t.Fatalf("ids len = %d, want %d", len(got), len(tc.want))
			}
			for i, index := range tc.want {
				if got[i] != ids[index] {
					t.Fatalf("ids[%d] = %q, want record %d", i, got[i], index)
				}
			}
			if pages != tc.pages {
				t.Fatalf("pages = %d, want %d", pages, tc.pages)
			}
		})
	}
}

func TestReadFiltersByTimeRangeAndOrigin(t *testing.T) {
	manager := openTestManager(t, DefaultConfig())
	mine := upsertRecords(t, manager, testPackage,
		stepsAt("early", testNow.Add(-5*time.Hour), 1),
		stepsAt("inside", testNow.Add(-2*time.Hour), 2),
	)
	upsertRecords(t, manager, "com.example.other", stepsAt("inside", testNow.Add(-2*time.Hour), 3))

	req, err := request.NewReadByFilter(testPackage, request.ReadFilter{
		RecordType:  storage.RecordTypeSteps,
		TimeRange:   &storage.TimeRange{Start: testNow.Add(-3 * time.Hour), End: testNow},
		DataOrigins: []string{testPackage},
	}, manager.PageSizeConfig())
	if err != nil {
		t.Fatalf("build read: %v", err)
	}
	if !req.IsReadingSelfData() {
		t.Fatal("expected self read")
	}
	page, err := manager.ReadRecordsAndPageToken(context.Background(), req)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if len(page.Records) != 1 || page.Records[0].ID != mine[1] {
		t.Fatalf("records = %+v, want only %q", page.Records, mine[1])
	}
	if page.NextPageToken != "" {
		t.Fatalf("next token = %q, want empty", page.NextPageToken)
	}
}

func TestReadFilterExpression(t *testing.T) {
	manager := openTestManager(t, DefaultConfig())
	upsertRecords(t, manager, testPackage, stepsAt("walk-1", testNow, 1))
	others := upsertRecords(t, manager, "com.example.other", stepsAt("walk-1", testNow, 2))

	req, err := request.NewReadByFilter(testPackage, request.ReadFilter{
		RecordType: storage.RecordTypeSteps,
		Expression: `data_origin = "com.example.other"`,
	}, manager.PageSizeConfig())
	if err != nil {
		t.Fatalf("build read: %v", err)
	}
	page, err := manager.ReadRecordsAndPageToken(context.Background(), req)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if len(page.Records) != 1 || page.Records[0].ID != others[0] {
		t.Fatalf("records = %+v, want only %q", page.Records, others[0])
	}
}

func TestReadWrongMode(t *testing.T) {
	manager := openTestManager(t, DefaultConfig())
	ctx := context.Background()

	byIDs, err := request.NewReadByIDs(testPackage, storage.RecordTypeSteps, []string{"id-1"})
	if err != nil {
		t.Fatalf("build id read: %v", err)
	}
	if _, err := manager.ReadRecordsAndPageToken(ctx, byIDs); !apperrors.HasCode(err, apperrors.CodeRequestWrongMode) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeRequestWrongMode)
	}

	byFilter, err := request.NewReadByFilter(testPackage, request.ReadFilter{RecordType: storage.RecordTypeSteps}, manager.PageSizeConfig())
	if err != nil {
		t.Fatalf("build filter read: %v", err)
	}
	if _, err := manager.ReadRecordsByIDs(ctx, byFilter); !apperrors.HasCode(err, apperrors.CodeRequestWrongMode) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeRequestWrongMode)
	}
}
