package audit

import "slices"

// Counts tallies outcomes by status.
type Counts struct {
	Valid   int
	Invalid int
	Failed  int
}

func (c *Counts) add(s Status) {
	switch s {
	case StatusValid:
		c.Valid++
	case StatusInvalid:
		c.Invalid++
	case StatusFailed:
		c.Failed++
	}
}

// Total returns the number of outcomes counted.
func (c Counts) Total() int {
	return c.Valid + c.Invalid + c.Failed
}

// CustomerSummary is the per-customer reporting line of a Result.
type CustomerSummary struct {
	CustomerID string
	Counts     Counts
}

// Result is the aggregated outcome of a run.
type Result struct {
	batches   []CustomerBatch
	summaries []CustomerSummary
	totals    Counts
}

// Aggregate concatenates batches in the order received and computes counts.
// It does no I/O and never reorders customers.
func Aggregate(batches ...CustomerBatch) Result {
	r := Result{
		batches:   slices.Clone(batches),
		summaries: make([]CustomerSummary, 0, len(batches)),
	}
	for _, b := range batches {
		c := b.Counts()
		r.summaries = append(r.summaries, CustomerSummary{CustomerID: b.CustomerID(), Counts: c})
		r.totals.Valid += c.Valid
		r.totals.Invalid += c.Invalid
		r.totals.Failed += c.Failed
	}
	return r
}

// Batches returns the batches in customer order.
func (r Result) Batches() []CustomerBatch { return slices.Clone(r.batches) }

// Summaries returns per-customer counts in customer order.
func (r Result) Summaries() []CustomerSummary { return slices.Clone(r.summaries) }

// Totals returns counts across all customers.
func (r Result) Totals() Counts { return r.totals }
