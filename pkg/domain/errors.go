package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports one or more input problems found during an
// operation. Accumulating walks (capacity gathering) collect every problem
// they encounter rather than stopping at the first.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	switch len(e.Problems) {
	case 0:
		return "validation failed"
	case 1:
		return e.Problems[0]
	default:
		return fmt.Sprintf("%d validation problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
	}
}

// Add appends a problem description.
func (e *ValidationError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// HasProblems reports whether any problem was collected.
func (e *ValidationError) HasProblems() bool { return len(e.Problems) > 0 }

// NotFoundError reports an unknown barcode, location, or batch reference.
type NotFoundError struct {
	Entity EntityType
	Ref    string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Ref)
}

// InconsistentHistoryError reports that a vessel's event history cannot
// support the requested operation, e.g. a rack with no events at all being
// checked in. Fatal for that single vessel's operation only.
type InconsistentHistoryError struct {
	Barcode string
	Reason  string
}

func (e InconsistentHistoryError) Error() string {
	return fmt.Sprintf("rack %s: %s", e.Barcode, e.Reason)
}
