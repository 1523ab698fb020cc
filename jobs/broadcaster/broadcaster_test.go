package broadcaster

import (
	"context"
	"errors"
	"io"
	"testing"

	exitwal "exsim/infra/wal/exit"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newOutbox(t *testing.T, payloads ...string) *exitwal.ExitWAL {
	t.Helper()
	w, err := exitwal.Open(t.TempDir(), exitwal.Options{NoSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	for _, p := range payloads {
		_, err := w.PutNew([]byte("AAPL"), []byte(p))
		require.NoError(t, err)
	}
	return w
}

type fakePublisher struct {
	sent []string
	fail map[string]int
}

func (f *fakePublisher) Publish(_ context.Context, _, value []byte) error {
	if f.fail[string(value)] > 0 {
		f.fail[string(value)]--
		return errors.New("broker down")
	}
	f.sent = append(f.sent, string(value))
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestPublishOnceDrainsInOrder(t *testing.T) {
	outbox := newOutbox(t, "a", "b", "c")
	pub := &fakePublisher{}
	b := New(outbox, pub, Config{}, quietLogger())

	sent, failed, err := b.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Zero(t, failed)
	assert.Equal(t, []string{"a", "b", "c"}, pub.sent)

	counts, err := outbox.Count()
	require.NoError(t, err)
	assert.Empty(t, counts, "acked events are deleted")
}

func TestPublishOnceRetriesFailures(t *testing.T) {
	outbox := newOutbox(t, "a", "b")
	pub := &fakePublisher{fail: map[string]int{"a": 2}}
	b := New(outbox, pub, Config{MaxRetries: 2}, quietLogger())

	sent, failed, err := b.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, failed)

	rec, err := outbox.Get(1)
	require.NoError(t, err)
	assert.Equal(t, exitwal.StateFailed, rec.State)
	assert.Equal(t, uint32(1), rec.Retries)

	_, failed, err = b.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	sent, failed, err = b.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent+failed, "parked after MaxRetries")
	assert.Equal(t, []string{"b"}, pub.sent)
}

func TestPublishOnceBatchSize(t *testing.T) {
	outbox := newOutbox(t, "a", "b", "c")
	pub := &fakePublisher{}
	b := New(outbox, pub, Config{BatchSize: 2}, quietLogger())

	sent, _, err := b.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	sent, _, err = b.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestSaramaPublisher(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "payload" {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewSaramaPublisherFrom(producer, "exsim.events")
	require.NoError(t, pub.Publish(context.Background(), []byte("AAPL"), []byte("payload")))
	assert.ErrorIs(t, pub.Publish(context.Background(), nil, []byte("x")), sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

func TestStartStopsWithContext(t *testing.T) {
	outbox := newOutbox(t)
	b := New(outbox, &fakePublisher{}, Config{}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	cancel()
	<-b.Done()
}
