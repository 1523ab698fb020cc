package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// list returns snapshot files oldest first. Names embed a fixed-width
// timestamp, so lexical order is age order.
func list(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// LoadLatest reads the newest snapshot in dir. It returns nil and no
// error when there is none.
func LoadLatest(dir string) (*Snapshot, string, error) {
	files, err := list(dir)
	if err != nil {
		return nil, "", err
	}
	if len(files) == 0 {
		return nil, "", nil // snapshot optional
	}
	path := files[len(files)-1]
	s, err := Load(path)
	return s, path, err
}

func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	var s Snapshot
	if err := gob.NewDecoder(zr).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	if s.Version != formatVersion {
		return nil, fmt.Errorf("snapshot %s: unsupported version %d", filepath.Base(path), s.Version)
	}
	return &s, nil
}
