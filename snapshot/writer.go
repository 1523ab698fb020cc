package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	filePrefix = "snapshot-"
	fileSuffix = ".gob.zst"
)

type Writer struct {
	Dir string
	// Keep is how many snapshots survive a write. Zero keeps two.
	Keep int
}

// Write stores s and prunes old snapshots. It returns the file written.
func (w *Writer) Write(s *Snapshot) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	if s.Created.IsZero() {
		s.Created = time.Now()
	}
	s.Version = formatVersion

	name := fmt.Sprintf("%s%020d%s", filePrefix, s.Created.UnixNano(), fileSuffix)
	path := filepath.Join(w.Dir, name)

	tmp, err := os.CreateTemp(w.Dir, "snapshot-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, s); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish snapshot: %w", err)
	}

	return path, w.prune()
}

func encode(f *os.File, s *Snapshot) error {
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(s); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

func (w *Writer) prune() error {
	keep := w.Keep
	if keep <= 0 {
		keep = 2
	}
	files, err := list(w.Dir)
	if err != nil {
		return err
	}
	for len(files) > keep {
		if err := os.Remove(files[0]); err != nil {
			return fmt.Errorf("prune snapshot: %w", err)
		}
		files = files[1:]
	}
	return nil
}
