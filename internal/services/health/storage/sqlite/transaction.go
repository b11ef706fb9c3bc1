package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/louisbranch/healthrecords/internal/services/health/storage/sqlite")

// RunAsTransaction runs fn inside one transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
func (m *TransactionManager) RunAsTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := m.ready(ctx); err != nil {
		return err
	}
	if fn == nil {
		return apperrors.New(apperrors.CodeRequestInvalidArgument, "transaction function is required")
	}
	return m.inTransaction(ctx, "run_as_transaction", func(_ context.Context, tx *sql.Tx) error {
		return fn(tx)
	})
}

// inTransaction opens a span and a transaction around fn.
func (m *TransactionManager) inTransaction(ctx context.Context, operation string, fn func(context.Context, *sql.Tx) error, attrs ...attribute.KeyValue) (err error) {
	ctx, span := tracer.Start(ctx, "healthrecords.storage."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append([]attribute.KeyValue{attribute.String("db.system", "sqlite")}, attrs...)...),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := m.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeError("begin transaction", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rollbackErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return storeError("commit transaction", err)
	}
	return nil
}
