// Package input reads the identifier list of a run.
//
// The file has one record per line, either a bare identifier, which belongs
// to the default customer, or "customer_id,identifier". Blank lines and lines
// starting with '#' are skipped.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mrioqueiroz/nrdata-dl/pkg/audit"
)

// Load reads path and groups its identifiers by customer. Customers are
// ordered by first appearance; identifiers keep their order within a customer.
func Load(path, defaultCustomer string) ([]audit.Customer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	customers, err := Read(f, defaultCustomer)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	return customers, nil
}

// Read parses records from r. See Load.
func Read(r io.Reader, defaultCustomer string) ([]audit.Customer, error) {
	if defaultCustomer == "" {
		return nil, errors.New("default customer is required")
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	cr.ReuseRecord = true

	var (
		customers []audit.Customer
		index     = make(map[string]int)
	)

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		customerID, value := defaultCustomer, ""
		switch len(record) {
		case 1:
			value = record[0]
		case 2:
			customerID, value = strings.TrimSpace(record[0]), record[1]
		default:
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected 1 or 2 fields, got %d", line, len(record))
		}
		value = strings.TrimSpace(value)

		if customerID == "" {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: empty customer id", line)
		}
		if value == "" && len(record) == 1 {
			continue
		}

		i, ok := index[customerID]
		if !ok {
			i = len(customers)
			index[customerID] = i
			customers = append(customers, audit.Customer{ID: customerID})
		}
		customers[i].Identifiers = append(customers[i].Identifiers, audit.RawIdentifier{
			CustomerID: customerID,
			Value:      value,
		})
	}

	return customers, nil
}
