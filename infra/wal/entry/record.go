package entry

import "errors"

type RecordType uint8

const (
	RecordNewOrder RecordType = iota + 1
	RecordCancel
	RecordReduce
	RecordPurge
	RecordExpireDay
	RecordHalt
	RecordResume
	// RecordVoid withdraws an earlier NewOrder, by order id, that the book
	// could not take for lack of resources.
	RecordVoid
)

func (t RecordType) String() string {
	switch t {
	case RecordNewOrder:
		return "NEW_ORDER"
	case RecordCancel:
		return "CANCEL"
	case RecordReduce:
		return "REDUCE"
	case RecordPurge:
		return "PURGE"
	case RecordExpireDay:
		return "EXPIRE_DAY"
	case RecordHalt:
		return "HALT"
	case RecordResume:
		return "RESUME"
	case RecordVoid:
		return "VOID"
	}
	return "UNKNOWN"
}

var ErrCRCMismatch = errors.New("entry wal: crc mismatch")

// Record is one journaled intent. Seq is assigned by the WAL on append.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

const headerSize = 1 + 8 + 8 + 4
