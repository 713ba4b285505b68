package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// staged is a fully written and synced temp file waiting to be renamed over
// its target in the same directory.
type staged struct {
	name   string
	tmp    string
	target string
}

// stage writes name in dir to a temp file in the same directory. Nothing
// visible changes until commit.
func stage(dir, name string, write func(io.Writer) error) (*staged, error) {
	tmpFile, err := os.CreateTemp(dir, "."+name+".tmp.*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	tmpName := filepath.Clean(tmpFile.Name())

	fail := func(step string, err error) (*staged, error) {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("%s %s: %w", step, name, err)
	}

	if err := tmpFile.Chmod(0o644); err != nil {
		return fail("chmod", err)
	}

	buf := bufio.NewWriter(tmpFile)
	if err := write(buf); err != nil {
		return fail("write", err)
	}
	if err := buf.Flush(); err != nil {
		return fail("flush", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fail("sync", err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, fmt.Errorf("close %s: %w", name, err)
	}

	return &staged{name: name, tmp: tmpName, target: filepath.Join(dir, name)}, nil
}

// commit renames the temp file into place. The temp file is removed when the
// rename fails.
func (s *staged) commit() error {
	if err := os.Rename(s.tmp, s.target); err != nil {
		_ = os.Remove(s.tmp)
		return fmt.Errorf("rename %s: %w", s.name, err)
	}
	return nil
}

// discard removes the temp file.
func (s *staged) discard() {
	_ = os.Remove(s.tmp)
}

// writeAtomic writes name in dir through a temp file in the same directory
// and renames it into place, so readers see either the old file or the new one.
func writeAtomic(dir, name string, write func(io.Writer) error) error {
	s, err := stage(dir, name, write)
	if err != nil {
		return err
	}
	return s.commit()
}

// removeIfExists deletes path; a missing file is not an error.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
