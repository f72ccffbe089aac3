package sequence

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope identifies which counter partition a document number is drawn from:
// the organization, an optional branch, the document type, and the point in
// time used for year/month partitioning when the format asks for it.
type Scope struct {
	OrganizationID uuid.UUID
	BranchID       *uuid.UUID
	DocumentType   string
	At             time.Time
}

// Key is the exact counter identity in the store. BranchID, Year and Month
// are nil when the counter is not partitioned by them.
type Key struct {
	OrganizationID uuid.UUID
	BranchID       *uuid.UUID
	DocumentType   string
	Year           *int
	Month          *int
}

// Format controls how an allocated number is rendered into a reference
// string, e.g. INV-2025-03-0007.
type Format struct {
	Prefix       string
	Width        int
	IncludeYear  bool
	IncludeMonth bool
}

const defaultWidth = 4

var defaultFormats = map[string]Format{
	"INVOICE":    {Prefix: "INV", Width: defaultWidth, IncludeYear: true, IncludeMonth: true},
	"BILL":       {Prefix: "BILL", Width: defaultWidth, IncludeYear: true},
	"JOURNAL":    {Prefix: "JRN", Width: defaultWidth},
	"PAYMENT":    {Prefix: "PAY", Width: defaultWidth, IncludeYear: true},
	"ADJUSTMENT": {Prefix: "ADJ", Width: defaultWidth},
}

// FormatFor returns the configured format for a document type, falling back
// to the upper-cased type name as the prefix for types without one.
func FormatFor(documentType string) Format {
	if f, ok := defaultFormats[documentType]; ok {
		return f
	}

	return Format{Prefix: strings.ToUpper(documentType), Width: defaultWidth}
}

// Render produces the reference string for number n at time at.
func (f Format) Render(n int64, at time.Time) string {
	parts := []string{f.Prefix}

	if f.IncludeYear {
		parts = append(parts, fmt.Sprintf("%04d", at.Year()))
	}

	if f.IncludeMonth {
		parts = append(parts, fmt.Sprintf("%02d", int(at.Month())))
	}

	width := f.Width
	if width <= 0 {
		width = defaultWidth
	}

	parts = append(parts, fmt.Sprintf("%0*d", width, n))

	return strings.Join(parts, "-")
}

// keyFor narrows a scope into the exact counter key the format calls for.
func keyFor(scope Scope, format Format, branch *uuid.UUID) Key {
	key := Key{
		OrganizationID: scope.OrganizationID,
		BranchID:       branch,
		DocumentType:   scope.DocumentType,
	}

	if format.IncludeYear {
		year := scope.At.Year()
		key.Year = &year
	}

	if format.IncludeMonth {
		month := int(scope.At.Month())
		key.Month = &month
	}

	return key
}
