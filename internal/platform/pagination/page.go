// Package pagination normalizes page sizes and sort orders for filtered reads.
package pagination

import "fmt"

const (
	// DefaultPageSize is applied when a filtered read does not name a page size.
	DefaultPageSize = 1000
	// MaxPageSize bounds a single filtered read page.
	MaxPageSize = 5000
)

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// DefaultPageSizeConfig returns the page size bounds used for record reads.
func DefaultPageSizeConfig() PageSizeConfig {
	return PageSizeConfig{Default: DefaultPageSize, Max: MaxPageSize}
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int32, cfg PageSizeConfig) int {
	pageSize := int(value)
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// SortOrder selects the time ordering of a filtered read.
type SortOrder int

const (
	// SortOrderUnspecified defers to the page token, then to ascending.
	SortOrderUnspecified SortOrder = iota
	// SortOrderAscending orders oldest first.
	SortOrderAscending
	// SortOrderDescending orders newest first.
	SortOrderDescending
)

// String returns the SQL keyword for the order.
func (o SortOrder) String() string {
	switch o {
	case SortOrderDescending:
		return "DESC"
	default:
		return "ASC"
	}
}

// ParseSortOrder validates a textual sort order and applies the default.
func ParseSortOrder(value string) (SortOrder, error) {
	switch value {
	case "":
		return SortOrderUnspecified, nil
	case "asc", "ASC", "ascending":
		return SortOrderAscending, nil
	case "desc", "DESC", "descending":
		return SortOrderDescending, nil
	default:
		return SortOrderUnspecified, fmt.Errorf("invalid sort order: %s", value)
	}
}
