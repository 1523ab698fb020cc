package exit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotFound = errors.New("exit wal: record not found")

// -------------------- Record --------------------

// ExitRecord is one outbound event and its delivery bookkeeping.
type ExitRecord struct {
	Seq         uint64
	State       ExitState
	Retries     uint32
	LastAttempt int64
	Key         []byte
	Payload     []byte
}

const recordHeader = 1 + 4 + 8 + 2

// binary encoding: [state:1][retries:4][lastAttempt:8][keyLen:2][key][payload]
func encodeRecord(r ExitRecord) []byte {
	buf := make([]byte, recordHeader+len(r.Key)+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(r.Key)))
	copy(buf[recordHeader:], r.Key)
	copy(buf[recordHeader+len(r.Key):], r.Payload)
	return buf
}

func decodeRecord(seq uint64, b []byte) (ExitRecord, error) {
	if len(b) < recordHeader {
		return ExitRecord{}, errors.New("invalid exit record length")
	}
	keyLen := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < recordHeader+keyLen {
		return ExitRecord{}, errors.New("invalid exit record key length")
	}
	// pebble owns b; copy what outlives the call.
	rest := append([]byte(nil), b[recordHeader:]...)
	return ExitRecord{
		Seq:         seq,
		State:       ExitState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Key:         rest[:keyLen:keyLen],
		Payload:     rest[keyLen:],
	}, nil
}

// -------------------- WAL --------------------

// ExitWAL is the event outbox: book events land here as NEW and the
// broadcaster moves them through SENT to ACKED or FAILED.
type ExitWAL struct {
	db   *pebble.DB
	sync *pebble.WriteOptions

	mu      sync.Mutex
	lastSeq uint64
}

type Options struct {
	// NoSync skips fsync on writes; for tests and benchmarks.
	NoSync bool
}

func Open(dir string, opts Options) (*ExitWAL, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, fmt.Errorf("open exit wal: %w", err)
	}
	w := &ExitWAL{db: db, sync: pebble.Sync}
	if opts.NoSync {
		w.sync = pebble.NoSync
	}
	if w.lastSeq, err = w.loadLastSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *ExitWAL) Close() error {
	return w.db.Close()
}

// LastSeq is the highest sequence appended so far.
func (w *ExitWAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

// -------------------- API --------------------

// Entry is one event to append.
type Entry struct {
	Key     []byte
	Payload []byte
}

// AppendBatch stores entries as NEW under consecutive sequences in one
// atomic write and returns the first sequence used.
func (w *ExitWAL) AppendBatch(entries []Entry) (uint64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.db.NewBatch()
	defer b.Close()

	first := w.lastSeq + 1
	for i, e := range entries {
		rec := ExitRecord{State: StateNew, Key: e.Key, Payload: e.Payload}
		if err := b.Set(keyFor(first+uint64(i)), encodeRecord(rec), nil); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(w.sync); err != nil {
		return 0, fmt.Errorf("commit exit batch: %w", err)
	}
	w.lastSeq = first + uint64(len(entries)) - 1
	return first, nil
}

// PutNew inserts a single NEW entry.
func (w *ExitWAL) PutNew(key, payload []byte) (uint64, error) {
	return w.AppendBatch([]Entry{{Key: key, Payload: payload}})
}

// UpdateState records a delivery attempt.
func (w *ExitWAL) UpdateState(seq uint64, state ExitState, retries uint32) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return w.db.Set(keyFor(seq), encodeRecord(rec), w.sync)
}

// Delete removes ACKED records (cleanup).
func (w *ExitWAL) Delete(seq uint64) error {
	return w.db.Delete(keyFor(seq), w.sync)
}

// Get returns the current record for a sequence.
func (w *ExitWAL) Get(seq uint64) (ExitRecord, error) {
	val, closer, err := w.db.Get(keyFor(seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ExitRecord{}, fmt.Errorf("seq %d: %w", seq, ErrNotFound)
		}
		return ExitRecord{}, err
	}
	defer closer.Close()

	return decodeRecord(seq, val)
}

// -------------------- Scan --------------------

// ScanByState iterates, in sequence order, all records in any of the
// given states. This is used by the Broadcaster.
func (w *ExitWAL) ScanByState(fn func(rec ExitRecord) error, states ...ExitState) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) == 0 || !wanted(ExitState(val[0]), states) {
			continue
		}

		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, val)
		if err != nil {
			return err
		}

		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Count returns how many records sit in each state.
func (w *ExitWAL) Count() (map[ExitState]int, error) {
	out := map[ExitState]int{}
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if v := iter.Value(); len(v) > 0 {
			out[ExitState(v[0])]++
		}
	}
	return out, iter.Error()
}

// -------------------- Helpers --------------------

const (
	keyPrefix = "event/"
	keyUpper  = "event0" // first key past the prefix
)

func wanted(s ExitState, states []ExitState) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}

func keyFor(seq uint64) []byte {
	b := make([]byte, len(keyPrefix)+8)
	copy(b, keyPrefix)
	binary.BigEndian.PutUint64(b[len(keyPrefix):], seq)
	return b
}

func parseKey(b []byte) (uint64, error) {
	if len(b) != len(keyPrefix)+8 || string(b[:len(keyPrefix)]) != keyPrefix {
		return 0, fmt.Errorf("malformed exit key %q", b)
	}
	return binary.BigEndian.Uint64(b[len(keyPrefix):]), nil
}

func (w *ExitWAL) loadLastSeq() (uint64, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}
