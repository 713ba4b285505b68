package output

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrioqueiroz/nrdata-dl/pkg/audit"
)

// Header is the first row of every CSV file.
var Header = []string{"customer_id", "identifier", "status", "reason", "retrieved_at"}

// SummaryRow is one CSV line, derived 1:1 from an entry.
type SummaryRow struct {
	CustomerID  string
	Identifier  string
	Status      audit.Status
	Reason      string
	RetrievedAt time.Time
}

// Record renders the row as CSV fields. Reason is empty for valid rows and
// RetrievedAt is empty unless the row is valid.
func (r SummaryRow) Record() []string {
	retrievedAt := ""
	if r.Status == audit.StatusValid && !r.RetrievedAt.IsZero() {
		retrievedAt = r.RetrievedAt.UTC().Format(time.RFC3339)
	}
	reason := r.Reason
	if r.Status == audit.StatusValid {
		reason = ""
	}
	return []string{r.CustomerID, r.Identifier, string(r.Status), reason, retrievedAt}
}

// Rows returns the rows for b in input order.
func Rows(b audit.CustomerBatch) []SummaryRow {
	entries := b.Entries()
	rows := make([]SummaryRow, len(entries))
	for i, e := range entries {
		rows[i] = SummaryRow{
			CustomerID:  b.CustomerID(),
			Identifier:  e.Key(),
			Status:      e.Outcome.Status(),
			Reason:      e.Outcome.Reason(),
			RetrievedAt: e.Outcome.RetrievedAt(),
		}
	}
	return rows
}

// SanitizeCustomerID maps id to a safe file name stem: characters outside
// [A-Za-z0-9._-] become '_', and names that would be empty or a dot path are
// prefixed with '_'.
func SanitizeCustomerID(id string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)

	if s == "" || strings.Trim(s, ".") == "" {
		return "_" + s
	}
	return s
}

// ErrReservedName is returned for a customer whose files would replace the
// run summary.
var ErrReservedName = errors.New("customer id maps to a reserved file name")

// isReserved reports whether a customer stem would overwrite a run-level
// file. File systems may fold case, so the comparison does too.
func isReserved(stem string) bool {
	return strings.EqualFold(stem+".csv", SummaryFile)
}

// CheckCustomerIDs reports customer ids whose output files would replace the
// run summary or another customer's files. Stems are compared without case.
func CheckCustomerIDs(ids ...string) error {
	var errs []error
	seen := make(map[string]string, len(ids))
	for _, id := range ids {
		stem := SanitizeCustomerID(id)
		if isReserved(stem) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrReservedName, id))
			continue
		}
		key := strings.ToLower(stem)
		if other, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("customer %q collides with customer %q in output file names", id, other))
			continue
		}
		seen[key] = id
	}
	return errors.Join(errs...)
}
