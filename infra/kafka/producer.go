package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Options configures a Producer. Empty fields take the defaults noted.
type Options struct {
	Brokers []string
	Topic   string
	// Acks is "all" (default), "one" or "none".
	Acks string
	// Compression is "none" (default), "gzip", "snappy", "lz4" or "zstd".
	Compression string
	// BatchTimeout defaults to 10ms. Publish is synchronous, so this only
	// bounds how long a lone event waits for company.
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// Producer publishes outbox events with segmentio/kafka-go. Events are
// keyed by security and the Hash balancer keeps a security on one
// partition, so consumers see each book's events in outbox order.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(opts Options) (*Producer, error) {
	if len(opts.Brokers) == 0 || opts.Topic == "" {
		return nil, fmt.Errorf("kafka-go producer: brokers and topic are required")
	}
	acks, err := requiredAcks(opts.Acks)
	if err != nil {
		return nil, err
	}
	codec, err := compression(opts.Compression)
	if err != nil {
		return nil, err
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 10 * time.Millisecond
	}

	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(opts.Brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: acks,
			Compression:  codec,
			BatchTimeout: opts.BatchTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
	}, nil
}

// Publish writes one event and waits for the configured acks.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("kafka-go publish %s/%s: %w", p.writer.Topic, key, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func requiredAcks(s string) (kafka.RequiredAcks, error) {
	switch s {
	case "", "all":
		return kafka.RequireAll, nil
	case "one":
		return kafka.RequireOne, nil
	case "none":
		return kafka.RequireNone, nil
	}
	return 0, fmt.Errorf("kafka acks %q: want all, one or none", s)
}

func compression(s string) (kafka.Compression, error) {
	switch s {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("kafka compression %q is not supported", s)
}
