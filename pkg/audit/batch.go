package audit

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mrioqueiroz/nrdata-dl/pkg/nr"
)

// ErrIncompleteBatch is returned when batch entries do not cover every input
// position exactly once.
var ErrIncompleteBatch = errors.New("audit: incomplete batch")

// RawIdentifier is an unvalidated input value and the customer that submitted it.
type RawIdentifier struct {
	CustomerID string
	Value      string
}

// Customer is a set of identifiers submitted together.
type Customer struct {
	ID          string
	Identifiers []RawIdentifier
}

// NewCustomer builds a Customer from raw values, in order.
func NewCustomer(id string, values ...string) Customer {
	raws := make([]RawIdentifier, len(values))
	for i, v := range values {
		raws[i] = RawIdentifier{CustomerID: id, Value: v}
	}
	return Customer{ID: id, Identifiers: raws}
}

// Entry is the outcome for the identifier at Position in the customer's input.
// Identifier is the zero value when the input was invalid.
type Entry struct {
	Position   int
	Raw        string
	Identifier nr.Identifier
	Outcome    Outcome
}

// Key returns the identifier used in reports: the normalized form when the
// input was valid, otherwise the raw input.
func (e Entry) Key() string {
	if e.Identifier.IsZero() {
		return e.Raw
	}
	return e.Identifier.String()
}

// CustomerBatch is the complete set of outcomes for one customer in one run,
// in input order.
type CustomerBatch struct {
	customerID string
	entries    []Entry
}

// NewCustomerBatch builds a batch for customer from entries in any order.
// Entries are sorted by position; every input position must appear exactly once.
func NewCustomerBatch(customer Customer, entries []Entry) (CustomerBatch, error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int { return a.Position - b.Position })

	if len(sorted) != len(customer.Identifiers) {
		return CustomerBatch{}, fmt.Errorf("%w: customer %s has %d inputs, got %d outcomes",
			ErrIncompleteBatch, customer.ID, len(customer.Identifiers), len(sorted))
	}
	for i, e := range sorted {
		if e.Position != i || e.Outcome.IsZero() {
			return CustomerBatch{}, fmt.Errorf("%w: customer %s position %d missing or unset",
				ErrIncompleteBatch, customer.ID, i)
		}
	}

	return CustomerBatch{customerID: customer.ID, entries: sorted}, nil
}

// CustomerID returns the owning customer.
func (b CustomerBatch) CustomerID() string { return b.customerID }

// Entries returns a copy of the entries in input order.
func (b CustomerBatch) Entries() []Entry { return slices.Clone(b.entries) }

// Len returns the number of entries.
func (b CustomerBatch) Len() int { return len(b.entries) }

// Counts tallies the batch by status.
func (b CustomerBatch) Counts() Counts {
	var c Counts
	for _, e := range b.entries {
		c.add(e.Outcome.Status())
	}
	return c
}
