package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"exsim/infra/sequence"
	entrywal "exsim/infra/wal/entry"
	"exsim/snapshot"
)

type RecoverStats struct {
	Snapshot string
	Restored int
	Replayed int
	Skipped  int
	LastSeq  uint64
}

/*
Recover rebuilds every book in reg: the newest snapshot in snapDir first,
then the WAL records in walDir that each book has not applied yet.

IMPORTANT:
- This MUST run before any service is started
- The outbox is not written during replay; its events went out before
*/
func Recover(reg *Registry, orderIDs *sequence.Sequencer, snapDir, walDir string, log logrus.FieldLogger) (RecoverStats, error) {
	var stats RecoverStats

	snap, path, err := snapshot.LoadLatest(snapDir)
	if err != nil {
		return stats, fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		stats.Snapshot = path
		orderIDs.AdvanceTo(snap.OrderIDSeq)
		for _, svc := range reg.All() {
			bs, ok := snap.Book(svc.Security())
			if !ok {
				continue
			}
			n, err := svc.restore(bs)
			stats.Restored += n
			if err != nil {
				return stats, err
			}
		}
	}

	replayed, skipped, lastSeq, err := ReplayFromWAL(reg, walDir)
	stats.Replayed, stats.Skipped, stats.LastSeq = replayed, skipped, lastSeq
	if err != nil {
		return stats, err
	}

	log.WithFields(logrus.Fields{
		"snapshot": stats.Snapshot,
		"restored": stats.Restored,
		"replayed": stats.Replayed,
		"skipped":  stats.Skipped,
		"last_seq": stats.LastSeq,
	}).Info("recovery completed")
	return stats, nil
}

// ReplayFromWAL applies every record in walDir past each book's own
// intent sequence. Records for securities not in reg are skipped.
func ReplayFromWAL(reg *Registry, walDir string) (replayed, skipped int, lastSeq uint64, err error) {
	all := reg.All()
	var after uint64
	for i, svc := range all {
		if i == 0 || svc.intentSeq < after {
			after = svc.intentSeq
		}
	}

	// NewOrders the pools refused live must not happen on replay either.
	voided := make(map[int64]struct{})
	_, err = entrywal.Replay(walDir, after, func(rec *entrywal.Record) error {
		if rec.Type != entrywal.RecordVoid {
			return nil
		}
		in, err := entrywal.DecodeIntent(rec.Data)
		if err != nil {
			return fmt.Errorf("wal record %d: %w", rec.Seq, err)
		}
		voided[in.OrderID] = struct{}{}
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}

	for _, svc := range all {
		svc.outbox.muted = true
	}
	defer func() {
		for _, svc := range all {
			svc.outbox.muted = false
		}
	}()

	lastSeq, err = entrywal.Replay(walDir, after, func(rec *entrywal.Record) error {
		if rec.Type == entrywal.RecordVoid {
			return nil
		}
		in, err := entrywal.DecodeIntent(rec.Data)
		if err != nil {
			return fmt.Errorf("wal record %d: %w", rec.Seq, err)
		}
		svc, err := reg.Get(in.Security)
		if err != nil {
			skipped++
			return nil
		}
		if rec.Seq <= svc.intentSeq {
			return nil
		}
		if rec.Type == entrywal.RecordNewOrder {
			if _, ok := voided[in.OrderID]; ok {
				svc.orderIDs.AdvanceTo(uint64(in.OrderID))
				svc.intentSeq = rec.Seq
				return nil
			}
		}
		svc.apply(rec.Type, rec.Seq, rec.Time, in)
		replayed++
		return nil
	})
	return replayed, skipped, lastSeq, err
}
