// Package normalize maps loosely structured API records onto a fixed,
// pre-declared column set. Field access is defensive: a missing, null,
// or empty field yields the sentinel value, never an error, so one
// dirty upstream record can never abort an extraction.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSentinel is the placeholder written for missing or empty fields.
const DefaultSentinel = "N/A"

// DefaultColumns returns the column set for customer record extraction.
func DefaultColumns() []string {
	return []string{
		"customer_id",
		"uuid",
		"name",
		"email",
		"age",
		"phone",
		"address",
		"city",
		"state",
		"zip_code",
	}
}

// Normalizer turns raw records into fixed-width rows. Column order and
// count are identical for every row produced by one Normalizer.
type Normalizer struct {
	columns  []string
	sentinel string
	missing  map[string]int
}

// New creates a Normalizer for the given ordered column set.
// An empty sentinel falls back to DefaultSentinel.
func New(columns []string, sentinel string) *Normalizer {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}

	cols := make([]string, len(columns))
	copy(cols, columns)

	return &Normalizer{
		columns:  cols,
		sentinel: sentinel,
		missing:  make(map[string]int),
	}
}

// Columns returns a copy of the declared column order.
func (n *Normalizer) Columns() []string {
	cols := make([]string, len(n.columns))
	copy(cols, n.columns)
	return cols
}

// Normalize maps one raw record onto the declared columns. Every cell
// is populated: the record's value where present, the sentinel where
// the field is absent, nil, or empty after trimming. Normalize never
// fails and calling it twice on the same record yields identical rows.
func (n *Normalizer) Normalize(record map[string]any) []string {
	row := make([]string, len(n.columns))

	for i, col := range n.columns {
		value, ok := record[col]
		cell := ""
		if ok {
			cell = stringify(value)
		}

		if cell == "" {
			n.missing[col]++
			cell = n.sentinel
		}

		row[i] = cell
	}

	return row
}

// MissingCounts returns how often each column was substituted with the
// sentinel. Diagnostic only; not used for control flow.
func (n *Normalizer) MissingCounts() map[string]int {
	counts := make(map[string]int, len(n.missing))
	for col, c := range n.missing {
		counts[col] = c
	}
	return counts
}

// stringify renders an arbitrary JSON-decoded value as a trimmed cell.
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		// JSON numbers decode as float64; keep integers clean.
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
