package output

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrioqueiroz/nrdata-dl/pkg/audit"
	"github.com/mrioqueiroz/nrdata-dl/pkg/nr"
)

var ts = time.Date(2026, 10, 17, 12, 34, 56, 0, time.UTC)

// scenarioBatch is C1: one success, one checksum failure, one timeout.
func scenarioBatch(t *testing.T) audit.CustomerBatch {
	t.Helper()

	customer := audit.NewCustomer("C1", "12345678901", "00000000000", "98765432109")
	b, err := audit.NewCustomerBatch(customer, []audit.Entry{
		{Position: 2, Raw: "98765432109", Identifier: nr.MustParse("98765432109"), Outcome: audit.Failed("timeout after 3 attempts", 3)},
		{Position: 0, Raw: "12345678901", Identifier: nr.MustParse("12345678901"), Outcome: audit.Valid([]byte(`{"nr":"12345678901"}`), ts)},
		{Position: 1, Raw: "00000000000", Outcome: audit.Invalid("checksum mismatch")},
	})
	require.NoError(t, err)
	return b
}

func batchOf(t *testing.T, customerID string, values ...string) audit.CustomerBatch {
	t.Helper()

	customer := audit.NewCustomer(customerID, values...)
	entries := make([]audit.Entry, len(values))
	for i, v := range values {
		entries[i] = audit.Entry{Position: i, Raw: v}
		id, err := nr.Parse(v)
		if err != nil {
			entries[i].Outcome = audit.Invalid(nr.Reason(err))
			continue
		}
		entries[i].Identifier = id
		entries[i].Outcome = audit.Valid([]byte(`{"nr":"`+id.String()+`"}`), ts)
	}
	b, err := audit.NewCustomerBatch(customer, entries)
	require.NoError(t, err)
	return b
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	files := make(map[string]string)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = string(data)
	}
	return files
}

func TestWriteCustomer_Scenario(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	report := w.WriteCustomer(scenarioBatch(t))
	require.NoError(t, report.Err)

	data, err := os.ReadFile(report.CSVPath)
	require.NoError(t, err)
	assert.Equal(t,
		"customer_id,identifier,status,reason,retrieved_at\n"+
			"C1,12345678901,valid,,2026-10-17T12:34:56Z\n"+
			"C1,00000000000,invalid,checksum mismatch,\n"+
			"C1,98765432109,failed,timeout after 3 attempts,\n",
		string(data))

	files := readArchive(t, report.ArchivePath)
	assert.Equal(t, map[string]string{"12345678901.json": `{"nr":"12345678901"}`}, files)
	assert.Equal(t, 1, report.Archived)
}

func TestWriteCustomer_ArchiveIgnoresStaleFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	// Leftovers from an earlier run.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "11111111116.json"), []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "C1"+ArchiveExt), []byte("not an archive"), 0o644))

	report := w.WriteCustomer(scenarioBatch(t))
	require.NoError(t, report.Err)

	files := readArchive(t, report.ArchivePath)
	assert.Len(t, files, 1)
	assert.Contains(t, files, "12345678901.json")
}

func TestWriteCustomer_ArchiveDeduplicates(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	report := w.WriteCustomer(batchOf(t, "C9", "12345678901", "98765432109", "12345678901"))
	require.NoError(t, report.Err)

	files := readArchive(t, report.ArchivePath)
	assert.Len(t, files, 2)
	assert.Equal(t, 2, report.Archived)

	data, err := os.ReadFile(report.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(data), "\n"), "every input keeps its CSV row")
}

func TestWrite_SummaryIsDeterministic(t *testing.T) {
	result := audit.Aggregate(
		scenarioBatch(t),
		batchOf(t, "C2", "98765432109", "bogus", "12345678901"),
	)

	var summaries [][]byte
	for i := 0; i < 2; i++ {
		w, err := NewWriter(t.TempDir())
		require.NoError(t, err)

		report := w.Write(result)
		require.NoError(t, report.Err())
		require.Len(t, report.Customers, 2)

		data, err := os.ReadFile(report.SummaryPath)
		require.NoError(t, err)
		summaries = append(summaries, data)
	}

	assert.Equal(t, summaries[0], summaries[1])

	lines := strings.Split(strings.TrimSuffix(string(summaries[0]), "\n"), "\n")
	require.Len(t, lines, 1+6, "header plus one row per input")
	assert.True(t, strings.HasPrefix(lines[1], "C1,12345678901,"))
	assert.True(t, strings.HasPrefix(lines[4], "C2,98765432109,"))
	assert.Equal(t, "C2,bogus,invalid,malformed,", lines[5])
}

func TestWrite_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	report := w.Write(audit.Aggregate(scenarioBatch(t)))
	require.NoError(t, report.Err())

	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	var got []string
	for _, n := range names {
		got = append(got, n.Name())
	}
	assert.ElementsMatch(t, []string{"C1.csv", "C1.tar.zst", "summary.csv"}, got)
}

func TestWrite_CustomerFailureIsIsolated(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	// A directory in the way makes the rename for C2 fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "C2.csv"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "C2.csv", "keep"), nil, 0o644))

	report := w.Write(audit.Aggregate(
		batchOf(t, "C2", "12345678901"),
		batchOf(t, "C3", "98765432109"),
	))

	require.Len(t, report.Customers, 2)
	assert.Error(t, report.Customers[0].Err)
	assert.Empty(t, report.Customers[0].ArchivePath)
	assert.NoError(t, report.Customers[1].Err)
	assert.NoError(t, report.SummaryErr)
	assert.Error(t, report.Err())
	assert.NoFileExists(t, filepath.Join(dir, "C2.tar.zst"))
	assert.FileExists(t, filepath.Join(dir, "C3.tar.zst"))
}

func TestWriteCustomer_ArchiveFailureRemovesPreviousRun(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	// C1.csv is left over from an earlier run; a directory in the way makes
	// the archive rename fail.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "C1.csv"), []byte("old"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "C1"+ArchiveExt), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "C1"+ArchiveExt, "keep"), nil, 0o644))

	report := w.WriteCustomer(scenarioBatch(t))
	require.Error(t, report.Err)
	assert.Empty(t, report.CSVPath)
	assert.Empty(t, report.ArchivePath)
	assert.NoFileExists(t, filepath.Join(dir, "C1.csv"))

	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, names, 1, "no temp files left behind")
	assert.Equal(t, "C1"+ArchiveExt, names[0].Name())
}

func TestWriteCustomer_CSVFailureRemovesNewArchive(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "C1.csv"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "C1.csv", "keep"), nil, 0o644))

	report := w.WriteCustomer(scenarioBatch(t))
	require.Error(t, report.Err)
	assert.NoFileExists(t, filepath.Join(dir, "C1"+ArchiveExt))
}

func TestWriteCustomer_RejectsReservedName(t *testing.T) {
	for _, id := range []string{"summary", "SUMMARY", "Summary"} {
		t.Run(id, func(t *testing.T) {
			dir := t.TempDir()
			w, err := NewWriter(dir)
			require.NoError(t, err)

			summary := filepath.Join(dir, SummaryFile)
			require.NoError(t, os.WriteFile(summary, []byte("previous"), 0o644))

			report := w.WriteCustomer(batchOf(t, id, "12345678901"))
			require.ErrorIs(t, report.Err, ErrReservedName)

			data, err := os.ReadFile(summary)
			require.NoError(t, err)
			assert.Equal(t, "previous", string(data))
			assert.NoFileExists(t, filepath.Join(dir, id+ArchiveExt))
		})
	}
}

func TestWrite_ReservedCustomerKeepsSummary(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	report := w.Write(audit.Aggregate(
		batchOf(t, "summary", "12345678901"),
		batchOf(t, "C3", "98765432109"),
	))

	require.Len(t, report.Customers, 2)
	assert.ErrorIs(t, report.Customers[0].Err, ErrReservedName)
	require.NoError(t, report.SummaryErr)

	data, err := os.ReadFile(report.SummaryPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "customer_id,identifier,"))
	assert.Contains(t, string(data), "C3,98765432109,")
}

func TestCheckCustomerIDs(t *testing.T) {
	tests := []struct {
		name     string
		ids      []string
		reserved bool
		wantErr  bool
	}{
		{name: "distinct", ids: []string{"C1", "C2", "summary-2026"}},
		{name: "summary", ids: []string{"C1", "summary"}, reserved: true, wantErr: true},
		{name: "summary any case", ids: []string{"Summary"}, reserved: true, wantErr: true},
		{name: "sanitized collision", ids: []string{"a/b", "a_b"}, wantErr: true},
		{name: "case collision", ids: []string{"acme", "ACME"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCustomerIDs(tt.ids...)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.reserved, errors.Is(err, ErrReservedName))
		})
	}
}

func TestWriteCustomer_QuotesFields(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	report := w.WriteCustomer(batchOf(t, "ACME, Inc", "123,45"))
	require.NoError(t, report.Err)
	assert.Equal(t, "ACME__Inc.csv", filepath.Base(report.CSVPath))

	data, err := os.ReadFile(report.CSVPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ACME, Inc","123,45",invalid,malformed,`)
}

func TestSanitizeCustomerID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"C1", "C1"},
		{"acme-corp_2026.q4", "acme-corp_2026.q4"},
		{"../etc/passwd", ".._etc_passwd"},
		{"a b/c", "a_b_c"},
		{"", "_"},
		{".", "_."},
		{"..", "_.."},
		{"Société", "Soci_t_"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeCustomerID(tt.in))
		})
	}
}

func TestNewWriter_RequiresDir(t *testing.T) {
	_, err := NewWriter("")
	assert.Error(t, err)
}
