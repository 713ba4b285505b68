// Package output writes audit results to disk: a CSV file and a payload
// archive per customer, plus a run-level summary CSV.
//
// Every file is written to a temp file in the output directory and renamed
// into place. Archives are built from the in-memory batch, never by listing
// the directory, so stale payload files from earlier runs cannot leak in.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mrioqueiroz/nrdata-dl/pkg/audit"
	"github.com/mrioqueiroz/nrdata-dl/pkg/logging"
)

// SummaryFile is the run-level CSV written by WriteSummary.
const SummaryFile = "summary.csv"

// CustomerReport records where a customer's files went, or why they did not.
type CustomerReport struct {
	CustomerID  string
	CSVPath     string
	ArchivePath string
	Archived    int
	Err         error
}

// Report is the result of writing a whole run.
type Report struct {
	Customers   []CustomerReport
	SummaryPath string
	SummaryErr  error
}

// Err returns the first error in the report, or nil.
func (r Report) Err() error {
	for _, c := range r.Customers {
		if c.Err != nil {
			return fmt.Errorf("customer %s: %w", c.CustomerID, c.Err)
		}
	}
	if r.SummaryErr != nil {
		return fmt.Errorf("summary: %w", r.SummaryErr)
	}
	return nil
}

// Writer writes results under one directory.
type Writer struct {
	dir    string
	logger zerolog.Logger
}

// NewWriter creates dir if needed and returns a writer for it.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Writer{
		dir:    dir,
		logger: logging.NewLogger("output"),
	}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write writes every customer of result and then the summary. A failure for
// one customer is recorded in its report and does not stop the others.
func (w *Writer) Write(result audit.Result) Report {
	var report Report
	for _, b := range result.Batches() {
		report.Customers = append(report.Customers, w.WriteCustomer(b))
	}
	report.SummaryPath, report.SummaryErr = w.WriteSummary(result)
	return report
}

// WriteCustomer writes <customer>.csv and <customer>.tar.zst for b.
//
// Both files are fully written to temp files before either is renamed into
// place. When any step fails, the customer's files from an earlier run are
// removed, so a failed customer never leaves a CSV and an archive from
// different runs side by side.
func (w *Writer) WriteCustomer(b audit.CustomerBatch) CustomerReport {
	stem := SanitizeCustomerID(b.CustomerID())
	report := CustomerReport{CustomerID: b.CustomerID()}
	logger := w.logger.With().Str("customer_id", b.CustomerID()).Logger()

	if isReserved(stem) {
		outputErrorsTotal.WithLabelValues("csv").Inc()
		report.Err = fmt.Errorf("%w: %q", ErrReservedName, b.CustomerID())
		logger.Error().Err(report.Err).Msg("Refusing to write customer output")
		return report
	}

	csvName := stem + ".csv"
	archiveName := stem + ArchiveExt

	fail := func(kind string, err error) CustomerReport {
		outputErrorsTotal.WithLabelValues(kind).Inc()
		for _, name := range []string{archiveName, csvName} {
			if rmErr := removeIfExists(filepath.Join(w.dir, name)); rmErr != nil {
				logger.Warn().Err(rmErr).Str("file", name).Msg("Failed to remove previous output")
			}
		}
		logger.Error().Err(err).Str("kind", kind).Msg("Failed to write customer output")
		return CustomerReport{CustomerID: b.CustomerID(), Err: err}
	}

	csvFile, err := stage(w.dir, csvName, func(out io.Writer) error {
		return writeCSV(out, Rows(b))
	})
	if err != nil {
		return fail("csv", err)
	}

	archived := 0
	archiveFile, err := stage(w.dir, archiveName, func(out io.Writer) error {
		n, err := writeArchive(out, b)
		archived = n
		return err
	})
	if err != nil {
		csvFile.discard()
		return fail("archive", err)
	}

	if err := archiveFile.commit(); err != nil {
		csvFile.discard()
		return fail("archive", err)
	}
	if err := csvFile.commit(); err != nil {
		return fail("csv", err)
	}

	filesWrittenTotal.WithLabelValues("csv").Inc()
	filesWrittenTotal.WithLabelValues("archive").Inc()
	archivedPayloadsTotal.Add(float64(archived))

	report.CSVPath = filepath.Join(w.dir, csvName)
	report.ArchivePath = filepath.Join(w.dir, archiveName)
	report.Archived = archived

	logger.Info().
		Str("csv", report.CSVPath).
		Str("archive", report.ArchivePath).
		Int("payloads", report.Archived).
		Msg("Customer output written")

	return report
}

// WriteSummary writes summary.csv with every row of result, ordered by
// customer then input position.
func (w *Writer) WriteSummary(result audit.Result) (string, error) {
	var rows []SummaryRow
	for _, b := range result.Batches() {
		rows = append(rows, Rows(b)...)
	}

	if err := writeAtomic(w.dir, SummaryFile, func(out io.Writer) error {
		return writeCSV(out, rows)
	}); err != nil {
		outputErrorsTotal.WithLabelValues("summary").Inc()
		w.logger.Error().Err(err).Msg("Failed to write summary CSV")
		return "", err
	}
	filesWrittenTotal.WithLabelValues("summary").Inc()

	path := filepath.Join(w.dir, SummaryFile)
	w.logger.Info().Str("path", path).Int("rows", len(rows)).Msg("Summary written")
	return path, nil
}
