package output

import (
	"encoding/csv"
	"io"
)

// writeCSV writes the header and rows as UTF-8 CSV with "\n" line endings.
func writeCSV(w io.Writer, rows []SummaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
