package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
)

func TestUpsertAndReadByIDs(t *testing.T) {
	manager := openTestManager(t, DefaultConfig())
	ctx := context.Background()

	device := storage.Device{Manufacturer: "Acme", Model: "Band 2", Type: storage.DeviceTypeFitnessBand}
	steps := stepsAt("walk-1", testNow.Add(-time.Hour), 420)
	steps.ZoneOffsetSeconds = 3600
	heartRate := storage.Record{
		ClientRecordID: "hr-1",
		StartTime:      testNow.Add(-30 * time.Minute),
		Payload:        storage.HeartRate{BeatsPerMinute: 72},
	}
	req, err := request.NewUpsertTransactionRequest(testPackage, []storage.Record{steps, heartRate}, manager.Tables(), request.UpsertOptions{
		Device:      device,
		GenerateIDs: true,
		Now:         testNow,
	})
	if err != nil {
		t.Fatalf("build upsert: %v", err)
	}
	ids, err := manager.UpsertAll(ctx, req)
	if err != nil {
		t.Fatalf("upsert all: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids len = %d, want 2", len(ids))
	}
	if want := request.RecordID(testPackage, storage.RecordTypeSteps, "walk-1"); ids[0] != want {
		t.Fatalf("steps id = %q, want %q", ids[0], want)
	}

	read, err := request.NewReadByIDMap(testPackage, map[storage.RecordType][]string{
		storage.RecordTypeSteps:     {ids[0]},
		storage.RecordTypeHeartRate: {ids[1], "missing"},
	})
	if err != nil {
		t.Fatalf("build read: %v", err)
	}
	records, err := manager.ReadRecordsByIDs(ctx, read)
	if err != nil {
		t.Fatalf("read by ids: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records len = %d, want 2", len(records))
	}

	gotSteps := records[0]
	if gotSteps.ID != ids[0] {
		t.Fatalf("record id = %q, want %q", gotSteps.ID, ids[0])
	}
	if gotSteps.Payload != (storage.Steps{Count: 420}) {
		t.Fatalf("payload = %#v, want 420 steps", gotSteps.Payload)
	}
	if gotSteps.Device != device {
		t.Fatalf("device = %+v, want %+v", gotSteps.Device, device)
	}
	if gotSteps.PackageName != testPackage {
		t.Fatalf("package name = %q, want %q", gotSteps.PackageName, testPackage)
	}
	if gotSteps.ClientRecordID != "walk-1" {
		t.Fatalf("client record id = %q, want walk-1", gotSteps.ClientRecordID)
	}
	if gotSteps.ZoneOffsetSeconds != 3600 {
		t.Fatalf("zone offset = %d, want 3600", gotSteps.ZoneOffsetSeconds)
	}
	if !gotSteps.StartTime.Equal(steps.StartTime) || !gotSteps.EndTime.Equal(steps.EndTime) {
		t.Fatalf("times = %v-%v, want %v-%v", gotSteps.StartTime, gotSteps.EndTime, steps.StartTime, steps.EndTime)
	}

	gotHeartRate := records[1]
	if gotHeartRate.Payload != (storage.HeartRate{BeatsPerMinute: 72}) {
		t.Fatalf("payload = %#v, want 72 bpm", gotHeartRate.Payload)
	}
	if !gotHeartRate.EndTime.IsZero() {
		t.Fatalf("end time = %v, want zero for instant record", gotHeartRate.EndTime)
	}
}

func TestUpsertWithoutDeviceLeavesDeviceEmpty(t *testing.T) {
	manager := openTestManager(t, DefaultConfig())
	ids := upsertRecords(t, manager, testPackage, stepsAt("walk-1", testNow, 10))

	read, err := request.NewReadByIDs(testPackage, storage.RecordTypeSteps, ids)
	if err != nil {
		t.Fatalf("build read: %v", err)
	}
	records, err := manager.ReadRecordsByIDs(context.Background(), read)
	if err != nil {
		t.Fatalf("read by ids: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records len = %d, want 1", len(records))
	}
	if records[0].Device != (storage.Device{}) {
		t.Fatalf("device = %+v, want empty", records[0].Device)
	}
}

func TestUpsertKeepsNewerClientVersion(t *testing.T) {
	manager := openTestManager(t, DefaultConfig())
	ctx := context.Background()

	newer := stepsAt("walk-1", testNow, 10)
	newer.ClientRecordVersion = 2
	ids := upsertRecords(t, manager, testPackage, newer)

	older := stepsAt("walk-1", testNow, 99)
	older.ClientRecordVersion = 1
	upsertRecords(t, manager, testPackage, older)

	read, err := request.NewReadByIDs(testPackage, storage.RecordTypeSteps, ids)
	if err != nil {
		t.Fatalf("build read: %v", err)
	}
	records, err := manager.ReadRecordsByIDs(ctx, read)
	if err != nil {
		t.Fatalf("read by ids: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records len = %d, want 1", len(records))
	}
	if records[0].Payload != (storage.Steps{Count: 10}) {
		t.Fatalf("payload = %#v, want newer version", records[0].Payload)
	}

	page, err := manager.ReadChangeLogs(ctx, ChangeLogsRequest{PageSize: 10})
	if err != nil {
		t.Fatalf("read change logs: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("change logs = %d, want 1 for the applied upsert", len(page.Entries))
	}

	same := stepsAt("walk-1", testNow, 11)
	same.ClientRecordVersion = 2
	upsertRecords(t, manager, testPackage, same)
	records, err = manager.ReadRecordsByIDs(ctx, read)
	if err != nil {
		t.Fatalf("read by ids: %v", err)
	}
	if records[0].Payload != (storage.Steps{Count: 11}) {
		t.Fatalf("payload = %#v, want equal version to replace", records[0].Payload)
	}
}

func TestUpsertBatchLargerThanChunk(t *testing.T) {
	manager := openTestManager(t, Config{DeleteBatchSize: 2})

	var records []storage.Record
	for i := range 5 {
		records = append(records, stepsAt("walk-"+string(rune('a'+i)), testNow.Add(time.Duration(i)*time.Minute), int64(i)))
	}
	ids := upsertRecords(t, manager, testPackage, records...)
	if len(ids) != 5 {
		t.Fatalf("ids len = %d, want 5", len(ids))
	}

	token, err := manager.LatestChangeLogToken(context.Background())
	if err != nil {
		t.Fatalf("latest change log token: %v", err)
	}
	if token != 5 {
		t.Fatalf("latest token = %d, want 5", token)
	}
}

func TestUpsertRejectsRecordOfAnotherPackage(t *testing.T) {
	manager := openTestManager(t, DefaultConfig())
	ctx := context.Background()

	const owner, intruder = "com.example.owner", "com.example.intruder"
	ids := upsertRecords(t, manager, owner, stepsAt("walk-1", testNow, 10))

	own := stepsAt("walk-2", testNow, 1)
	own.ID = "6a1f3e2c-8d4b-4c7e-9f10-2b3c4d5e6f70"
	takeover := stepsAt("walk-1", testNow, 999)
	takeover.ID = ids[0]
	takeover.ClientRecordVersion = 5
	req, err := request.NewUpsertTransactionRequest(intruder, []storage.Record{own, takeover}, manager.Tables(), request.UpsertOptions{Now: testNow})
	if err != nil {
		t.Fatalf("build upsert: %v", err)
	}
	if _, err := manager.UpsertAll(ctx, req); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, storage.ErrNotFound)
	}

	read, err := request.NewReadByIDs(owner, storage.RecordTypeSteps, ids)
	if err != nil {
		t.Fatalf("build read: %v", err)
	}
	records, err := manager.ReadRecordsByIDs(ctx, read)
	if err != nil {
		t.Fatalf("read by ids: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records len = %d, want 1", len(records))
	}
	if records[0].PackageName != owner {
		t.Fatalf("package = %q, want %q", records[0].PackageName, owner)
	}
	if records[0].Payload != (storage.Steps{Count: 10}) {
		t.Fatalf("payload = %#v, want original", records[0].Payload)
	}

	// The rejected batch rolls back as a whole, including the intruder's own record.
	if got := countOperations(t, manager)[storage.ChangeOperationUpsert]; got != 1 {
		t.Fatalf("upsert change logs = %d, want 1", got)
	}
}
