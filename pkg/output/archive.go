package output

import (
	"archive/tar"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/mrioqueiroz/nrdata-dl/pkg/audit"
)

// ArchiveExt is appended to the sanitized customer id.
const ArchiveExt = ".tar.zst"

// writeArchive writes a zstd-compressed tar holding <identifier>.json for each
// valid entry of b, in input order. An identifier that appears more than once
// is stored once. It returns the number of files written.
func writeArchive(w io.Writer, b audit.CustomerBatch) (int, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	seen := make(map[string]bool)
	files := 0
	for _, e := range b.Entries() {
		if e.Outcome.Status() != audit.StatusValid {
			continue
		}
		name := e.Identifier.String() + ".json"
		if seen[name] {
			continue
		}
		seen[name] = true

		payload := e.Outcome.Payload()
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(payload)),
			ModTime:  e.Outcome.RetrievedAt().UTC(),
			Typeflag: tar.TypeReg,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			_ = zw.Close()
			return files, fmt.Errorf("tar header %s: %w", name, err)
		}
		if _, err := tw.Write(payload); err != nil {
			_ = zw.Close()
			return files, fmt.Errorf("tar write %s: %w", name, err)
		}
		files++
	}

	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return files, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return files, fmt.Errorf("close zstd: %w", err)
	}
	return files, nil
}
