package entry

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"exsim/infra/sequence"
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	// SyncEveryWrite fsyncs each append before it returns.
	SyncEveryWrite bool
}

// WAL is the intent journal. Appends from any goroutine are serialised
// and numbered in file order.
type WAL struct {
	mu         sync.Mutex
	dir        string
	segSize    int64
	segDur     time.Duration
	syncWrites bool
	current    *segment
	lastRotate time.Time
	seq        *sequence.Sequencer
	buf        []byte
}

// Open continues the newest segment in cfg.Dir, or starts segment 0.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("list wal segments: %w", err)
	}

	var lastSeq uint64
	index := 0
	for _, path := range files {
		max, err := maxSeqInSegment(path)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
		if max > lastSeq {
			lastSeq = max
		}
		if i, ok := segmentIndex(path); ok && i > index {
			index = i
		}
	}
	if len(files) > 0 {
		// Never append behind a possibly torn tail.
		index++
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, fmt.Errorf("open wal segment: %w", err)
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 64 << 20
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segDur:     cfg.SegmentDuration,
		syncWrites: cfg.SyncEveryWrite,
		current:    seg,
		lastRotate: time.Now(),
		seq:        sequence.New(lastSeq),
	}, nil
}

// LastSeq is the sequence of the last record written.
func (w *WAL) LastSeq() uint64 { return w.seq.Current() }

// Append writes one record and returns the sequence assigned to it.
func (w *WAL) Append(t RecordType, ts int64, data []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	payloadLen := uint32(len(data))
	size := headerSize + int(payloadLen) + 4
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	buf := w.buf[:size]
	seq := w.seq.Current() + 1

	// Frame:
	// [type:1][seq:8][time:8][len:4][payload][crc:4]
	buf[0] = byte(t)
	binary.BigEndian.PutUint64(buf[1:9], seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(ts))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], data)

	crc := CRC32(buf[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)

	if err := w.current.append(buf); err != nil {
		return 0, fmt.Errorf("append wal record: %w", err)
	}
	if w.syncWrites {
		if err := w.current.sync(); err != nil {
			return 0, fmt.Errorf("sync wal segment: %w", err)
		}
	}
	w.seq.Reset(seq)

	if w.current.offset >= w.segSize || (w.segDur > 0 && time.Since(w.lastRotate) >= w.segDur) {
		if err := w.rotate(); err != nil {
			return seq, err
		}
	}
	return seq, nil
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return fmt.Errorf("sync wal segment: %w", err)
	}
	_ = w.current.close()

	seg, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		return fmt.Errorf("rotate wal segment: %w", err)
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// Rotate closes the current segment and starts a new one.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotate()
}

// TruncateBefore removes every closed segment whose records are all at or
// below seq. The segment being written is never removed.
func (w *WAL) TruncateBefore(seq uint64) (int, error) {
	w.mu.Lock()
	current := w.current.index
	w.mu.Unlock()

	files, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range files {
		if i, ok := segmentIndex(path); !ok || i >= current {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("remove wal segment: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.current.sync(); err != nil {
		return err
	}
	return w.current.close()
}
