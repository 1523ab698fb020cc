package broadcaster

import (
	"context"
	"errors"
	"time"

	exitwal "exsim/infra/wal/exit"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Interval time.Duration
	// MaxRetries parks an event in FAILED after this many failed
	// attempts. Zero retries forever.
	MaxRetries uint32
	// BatchSize caps the events sent per pass.
	BatchSize int
}

var errBatchFull = errors.New("batch full")

// Broadcaster drains the outbox to a Publisher, oldest event first.
type Broadcaster struct {
	outbox *exitwal.ExitWAL
	pub    Publisher
	cfg    Config
	log    logrus.FieldLogger
	done   chan struct{}
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(outbox *exitwal.ExitWAL, pub Publisher, cfg Config, log logrus.FieldLogger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 512
	}
	return &Broadcaster{
		outbox: outbox,
		pub:    pub,
		cfg:    cfg,
		log:    log.WithField("component", "broadcaster"),
		done:   make(chan struct{}),
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.WithField("interval", b.cfg.Interval).Info("started")

	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				b.log.Info("stopped")
				return

			case <-ticker.C:
				if _, _, err := b.PublishOnce(ctx); err != nil {
					b.log.WithError(err).Error("publish pass failed")
				}
			}
		}
	}()
}

// Done is closed once the loop started by Start has exited.
func (b *Broadcaster) Done() <-chan struct{} { return b.done }

// ------------------------------------------------
// PUBLISH PASS
// ------------------------------------------------

// PublishOnce sends one batch of pending events. SENT entries found here
// were interrupted mid-delivery by a crash and go out again; consumers
// see at-least-once delivery.
func (b *Broadcaster) PublishOnce(ctx context.Context) (sent, failed int, err error) {
	batch := make([]exitwal.ExitRecord, 0, b.cfg.BatchSize)
	err = b.outbox.ScanByState(func(rec exitwal.ExitRecord) error {
		if rec.State == exitwal.StateFailed && b.cfg.MaxRetries > 0 && rec.Retries >= b.cfg.MaxRetries {
			return nil
		}
		batch = append(batch, rec)
		if len(batch) == b.cfg.BatchSize {
			return errBatchFull
		}
		return nil
	}, exitwal.StateNew, exitwal.StateSent, exitwal.StateFailed)
	if err != nil && !errors.Is(err, errBatchFull) {
		return 0, 0, err
	}

	for _, rec := range batch {
		if ctx.Err() != nil {
			return sent, failed, nil
		}

		// 1️⃣ Mark SENT
		if err := b.outbox.UpdateState(rec.Seq, exitwal.StateSent, rec.Retries); err != nil {
			return sent, failed, err
		}

		// 2️⃣ Publish
		if err := b.pub.Publish(ctx, rec.Key, rec.Payload); err != nil {
			failed++
			retries := rec.Retries + 1
			b.log.WithError(err).WithFields(logrus.Fields{"seq": rec.Seq, "retries": retries}).Warn("publish failed")
			if uerr := b.outbox.UpdateState(rec.Seq, exitwal.StateFailed, retries); uerr != nil {
				return sent, failed, uerr
			}
			continue
		}

		// 3️⃣ Mark ACKED, then drop it
		if err := b.outbox.UpdateState(rec.Seq, exitwal.StateAcked, rec.Retries); err != nil {
			return sent, failed, err
		}
		if err := b.outbox.Delete(rec.Seq); err != nil {
			return sent, failed, err
		}
		sent++
	}
	return sent, failed, nil
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.pub.Close()
}
