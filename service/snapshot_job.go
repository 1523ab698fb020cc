package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"exsim/infra/sequence"
	entrywal "exsim/infra/wal/entry"
	"exsim/snapshot"
)

// SnapshotJob periodically snapshots every book and drops the WAL
// segments the snapshot covers.
type SnapshotJob struct {
	reg      *Registry
	orderIDs *sequence.Sequencer
	writer   *snapshot.Writer
	wal      *entrywal.WAL
	interval time.Duration
	log      logrus.FieldLogger
	done     chan struct{}
}

func NewSnapshotJob(
	reg *Registry,
	orderIDs *sequence.Sequencer,
	writer *snapshot.Writer,
	wal *entrywal.WAL,
	interval time.Duration,
	log logrus.FieldLogger,
) *SnapshotJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SnapshotJob{
		reg:      reg,
		orderIDs: orderIDs,
		writer:   writer,
		wal:      wal,
		interval: interval,
		log:      log.WithField("component", "snapshot-job"),
		done:     make(chan struct{}),
	}
}

func (j *SnapshotJob) Start(ctx context.Context) {
	go func() {
		defer close(j.done)
		t := time.NewTicker(j.interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := j.RunOnce(ctx); err != nil {
					j.log.WithError(err).Error("snapshot failed")
				}
			}
		}
	}()
}

func (j *SnapshotJob) Done() <-chan struct{} { return j.done }

// RunOnce writes one snapshot and truncates the WAL behind it. Each book
// is captured on its own worker, so books may be at different sequences;
// replay starts every book from its own.
func (j *SnapshotJob) RunOnce(ctx context.Context) (string, error) {
	snap := &snapshot.Snapshot{Created: time.Now()}
	for _, svc := range j.reg.All() {
		bs, err := svc.Snapshot(ctx)
		if err != nil {
			return "", fmt.Errorf("capture %s: %w", svc.Security(), err)
		}
		snap.Books = append(snap.Books, bs)
	}
	// Read after every capture so it covers every id in the books.
	snap.OrderIDSeq = j.orderIDs.Current()

	path, err := j.writer.Write(snap)
	if err != nil {
		return path, err
	}

	removed, err := j.wal.TruncateBefore(snap.MinIntentSeq())
	if err != nil {
		return path, fmt.Errorf("truncate wal: %w", err)
	}
	j.log.WithFields(logrus.Fields{
		"path":            path,
		"books":           len(snap.Books),
		"min_intent_seq":  snap.MinIntentSeq(),
		"removed_segment": removed,
	}).Info("snapshot written")
	return path, nil
}
