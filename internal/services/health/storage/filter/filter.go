// Package filter provides AIP-160 filter expression parsing for record reads.
package filter

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/healthrecords/internal/platform/errors"
	"github.com/louisbranch/healthrecords/internal/services/health/storage/clause"
	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// RecordDeclarations returns the field declarations for record filtering.
func RecordDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("data_origin", filtering.TypeString),
		filtering.DeclareIdent("client_record_id", filtering.TypeString),
		filtering.DeclareIdent("start_time", filtering.TypeTimestamp),
		filtering.DeclareIdent("end_time", filtering.TypeTimestamp),
	)
}

type fieldKind int

const (
	fieldString fieldKind = iota
	fieldTimestamp
)

type field struct {
	column string
	kind   fieldKind
}

// fieldMapping maps filter field names to record table columns.
var fieldMapping = map[string]field{
	"data_origin":      {column: "package_name", kind: fieldString},
	"client_record_id": {column: "client_record_id", kind: fieldString},
	"start_time":       {column: "start_time", kind: fieldTimestamp},
	"end_time":         {column: "end_time", kind: fieldTimestamp},
}

// ParseRecordFilter parses an AIP-160 filter expression into where clauses.
// Returns an empty clause set for an empty filter string.
func ParseRecordFilter(filterStr string) (clause.WhereClauses, error) {
	if strings.TrimSpace(filterStr) == "" {
		return clause.New(clause.And), nil
	}

	decls, err := RecordDeclarations()
	if err != nil {
		return clause.WhereClauses{}, fmt.Errorf("create declarations: %w", err)
	}

	filter, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return clause.WhereClauses{}, apperrors.Wrap(apperrors.CodeFilterInvalid, "parse filter", err)
	}

	where, err := translateExpr(filter.CheckedExpr.GetExpr())
	if err != nil {
		return clause.WhereClauses{}, apperrors.Wrap(apperrors.CodeFilterInvalid, "translate filter", err)
	}
	return where, nil
}

func translateExpr(e *expr.Expr) (clause.WhereClauses, error) {
	if e == nil {
		return clause.New(clause.And), nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return clause.WhereClauses{}, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (clause.WhereClauses, error) {
	switch call.Function {
	case "_&&_", "AND":
		return translateJunction(call.Args, clause.And)
	case "_||_", "OR":
		return translateJunction(call.Args, clause.Or)
	case "_==_", "=":
		return translateComparison(call.Args, "=")
	case "_!=_", "!=":
		return translateComparison(call.Args, "!=")
	case "_<_", "<":
		return translateComparison(call.Args, "<")
	case "_<=_", "<=":
		return translateComparison(call.Args, "<=")
	case "_>_", ">":
		return translateComparison(call.Args, ">")
	case "_>=_", ">=":
		return translateComparison(call.Args, ">=")
	default:
		return clause.WhereClauses{}, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func translateJunction(args []*expr.Expr, op clause.Operator) (clause.WhereClauses, error) {
	if len(args) != 2 {
		return clause.WhereClauses{}, fmt.Errorf("%s requires 2 arguments", op)
	}

	left, err := translateExpr(args[0])
	if err != nil {
		return clause.WhereClauses{}, err
	}

	right, err := translateExpr(args[1])
	if err != nil {
		return clause.WhereClauses{}, err
	}

	return clause.New(op).Nested(left).Nested(right), nil
}

func translateComparison(args []*expr.Expr, op string) (clause.WhereClauses, error) {
	if len(args) != 2 {
		return clause.WhereClauses{}, fmt.Errorf("comparison requires 2 arguments")
	}

	name, err := extractFieldName(args[0])
	if err != nil {
		return clause.WhereClauses{}, err
	}

	f, ok := fieldMapping[name]
	if !ok {
		return clause.WhereClauses{}, fmt.Errorf("unknown field: %s", name)
	}

	where := clause.New(clause.And)
	switch f.kind {
	case fieldString:
		value, err := extractString(args[1])
		if err != nil {
			return clause.WhereClauses{}, err
		}
		switch op {
		case "=":
			return where.Equal(f.column, value), nil
		case "!=":
			return where.NotEqual(f.column, value), nil
		default:
			return clause.WhereClauses{}, fmt.Errorf("operator %s not supported for %s", op, name)
		}
	default:
		millis, err := extractTimestampMillis(args[1])
		if err != nil {
			return clause.WhereClauses{}, err
		}
		switch op {
		case "=":
			return where.EqualInt(f.column, millis), nil
		case "<":
			return where.LessThan(f.column, millis), nil
		case "<=":
			return where.LessThanOrEqual(f.column, millis), nil
		case ">":
			return where.GreaterThan(f.column, millis), nil
		case ">=":
			return where.GreaterThanOrEqual(f.column, millis), nil
		default:
			return clause.WhereClauses{}, fmt.Errorf("operator %s not supported for %s", op, name)
		}
	}
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractString(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}
	constant, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return "", fmt.Errorf("expected string constant, got %T", e.ExprKind)
	}
	value, ok := constant.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected string constant, got %T", constant.ConstExpr.ConstantKind)
	}
	return value.StringValue, nil
}

// extractTimestampMillis reads a timestamp("...") call as epoch milliseconds.
func extractTimestampMillis(e *expr.Expr) (int64, error) {
	if e == nil {
		return 0, fmt.Errorf("nil expression")
	}
	call, ok := e.ExprKind.(*expr.Expr_CallExpr)
	if !ok || call.CallExpr.Function != "timestamp" || len(call.CallExpr.Args) != 1 {
		return 0, fmt.Errorf("expected timestamp(...) value")
	}
	raw, err := extractString(call.CallExpr.Args[0])
	if err != nil {
		return 0, fmt.Errorf("timestamp argument must be a constant string")
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp format: %s", raw)
	}
	return t.UnixMilli(), nil
}
