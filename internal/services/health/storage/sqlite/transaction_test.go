package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/request"
)

func newMockManager(t *testing.T) (*TransactionManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewTransactionManager(db, Config{Now: func() time.Time { return testNow }}), mock
}

func stepsDeleteRequest(t *testing.T) request.DeleteTransactionRequest {
	t.Helper()
	req, err := request.NewDeleteByFilter(testPackage, request.DeleteFilter{
		RecordTypes: []storage.RecordType{storage.RecordTypeSteps},
	})
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	return req
}

func TestUpsertExecFailureRollsBack(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_info_table")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT row_id FROM application_info_table")).
		WillReturnRows(sqlmock.NewRows([]string{"row_id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO steps_record_table")).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	req, err := request.NewUpsertTransactionRequest(testPackage, []storage.Record{stepsAt("walk-1", testNow, 1)}, manager.Tables(), request.UpsertOptions{
		GenerateIDs: true,
		Now:         testNow,
	})
	if err != nil {
		t.Fatalf("build upsert: %v", err)
	}
	_, err = manager.UpsertAll(context.Background(), req)
	if !apperrors.HasCode(err, apperrors.CodeStoreExecution) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeStoreExecution)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteCommitFailure(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT row_id, uuid FROM steps_record_table")).
		WillReturnRows(sqlmock.NewRows([]string{"row_id", "uuid"}).AddRow(1, "id-1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM steps_record_table")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO change_logs")).
		ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	_, err := manager.DeleteAll(context.Background(), stepsDeleteRequest(t))
	if !apperrors.HasCode(err, apperrors.CodeStoreExecution) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeStoreExecution)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteRowCountMismatchRollsBack(t *testing.T) {
	manager, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT row_id, uuid FROM steps_record_table")).
		WillReturnRows(sqlmock.NewRows([]string{"row_id", "uuid"}).AddRow(1, "id-1").AddRow(2, "id-2"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM steps_record_table")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := manager.DeleteAll(context.Background(), stepsDeleteRequest(t))
	if !apperrors.HasCode(err, apperrors.CodeStoreExecution) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeStoreExecution)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBeginFailure(t *testing.T) {
	manager, mock := newMockManager(t)
	mock.ExpectBegin().WillReturnError(errors.New("out of memory"))

	_, err := manager.DeleteAll(context.Background(), stepsDeleteRequest(t))
	if !apperrors.HasCode(err, apperrors.CodeStoreExecution) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeStoreExecution)
	}
}

func TestRunAsTransaction(t *testing.T) {
	manager, mock := newMockManager(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE application_info_table")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err := manager.RunAsTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE application_info_table SET last_seen_time = 0")
		return err
	})
	if err != nil {
		t.Fatalf("run as transaction: %v", err)
	}

	failure := errors.New("abort")
	mock.ExpectBegin()
	mock.ExpectRollback()
	if err := manager.RunAsTransaction(ctx, func(*sql.Tx) error { return failure }); !errors.Is(err, failure) {
		t.Fatalf("err = %v, want %v", err, failure)
	}

	if err := manager.RunAsTransaction(ctx, nil); !apperrors.HasCode(err, apperrors.CodeRequestInvalidArgument) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeRequestInvalidArgument)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
