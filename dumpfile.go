package tracegc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/tracegc/internal/fs"
)

// WriteDumpFile writes a dump to path. The file is written to a temporary
// sibling, synced, then renamed, so path holds either the previous dump or
// the complete new one.
func (h *Heap) WriteDumpFile(path string, optFns ...DumpOption) (err error) {
	if h.closed {
		return ErrHeapClosed
	}

	if err := h.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("tracegc: create dump dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := h.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("tracegc: create dump file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = h.fs.Remove(tmp)
		}
	}()

	if err := h.WriteDump(f, optFns...); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("tracegc: sync dump file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("tracegc: close dump file: %w", err)
	}
	if err := h.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("tracegc: publish dump file: %w", err)
	}
	return nil
}

// ReadDumpFile reads a dump written by WriteDumpFile.
func ReadDumpFile(path string) (*Dump, error) {
	return readDumpFile(fs.Default, path)
}

func readDumpFile(fsys fs.FileSystem, path string) (d *Dump, err error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return ReadDump(f)
}
