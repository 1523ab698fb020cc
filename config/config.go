package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "EXSIM_"

// Config represents application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Securities []SecurityConfig `yaml:"securities"`
	Pool       PoolConfig       `yaml:"pool"`
	WAL        WALConfig        `yaml:"wal"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
	// PriceScale is the number of implied decimals in integer prices.
	PriceScale   int32         `yaml:"price_scale"`
	QueueSize    int           `yaml:"queue_size"`
	GracePeriod  time.Duration `yaml:"grace_period"`
	RequestLimit time.Duration `yaml:"request_timeout"`
}

// SecurityConfig is one tradable symbol and its trading increments.
type SecurityConfig struct {
	Symbol   string `yaml:"symbol"`
	TickSize int64  `yaml:"tick_size"`
	LotSize  int64  `yaml:"lot_size"`
}

type PoolConfig struct {
	Prealloc        int           `yaml:"prealloc"`
	MaxOrders       int64         `yaml:"max_orders"`
	MaxLevels       int64         `yaml:"max_levels"`
	HeapLimitBytes  uint64        `yaml:"heap_limit_bytes"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

type WALConfig struct {
	Dir             string        `yaml:"dir"`
	SegmentSize     int64         `yaml:"segment_size"`
	SegmentDuration time.Duration `yaml:"segment_duration"`
	SyncEveryWrite  bool          `yaml:"sync_every_write"`
}

type OutboxConfig struct {
	Dir string `yaml:"dir"`
}

type SnapshotConfig struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
	Keep     int           `yaml:"keep"`
}

type KafkaConfig struct {
	Enabled bool `yaml:"enabled"`
	// Client is "sarama" or "kafka-go".
	Client          string        `yaml:"client"`
	Brokers         []string      `yaml:"brokers"`
	Topic           string        `yaml:"topic"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	MaxRetries      uint32        `yaml:"max_retries"`
	// Acks is "all", "one" or "none".
	Acks string `yaml:"acks"`
	// Compression is "none", "gzip", "snappy", "lz4" or "zstd".
	Compression  string        `yaml:"compression"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig represents logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr:     ":50051",
			HTTPAddr:     ":8080",
			PriceScale:   8,
			QueueSize:    4096,
			GracePeriod:  10 * time.Second,
			RequestLimit: 5 * time.Second,
		},
		Securities: []SecurityConfig{{Symbol: "BTC-USD", TickSize: 1, LotSize: 1}},
		Pool: PoolConfig{
			Prealloc:        1024,
			MonitorInterval: time.Second,
		},
		WAL: WALConfig{
			Dir:         "data/wal",
			SegmentSize: 64 << 20,
		},
		Outbox:   OutboxConfig{Dir: "data/outbox"},
		Snapshot: SnapshotConfig{Dir: "data/snapshots", Interval: time.Minute, Keep: 2},
		Kafka: KafkaConfig{
			Client:          "sarama",
			Brokers:         []string{"localhost:9092"},
			Topic:           "exsim.events",
			PublishInterval: 250 * time.Millisecond,
			Acks:            "all",
			Compression:     "none",
			BatchTimeout:    10 * time.Millisecond,
			WriteTimeout:    10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads .env (if present), then the YAML file at path (if given) on
// top of the defaults, then EXSIM_* environment overrides, and validates
// the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.loadEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadEnvOverrides overrides config with environment variables
func (c *Config) loadEnvOverrides() {
	c.Server.GRPCAddr = getEnvString("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.HTTPAddr = getEnvString("HTTP_ADDR", c.Server.HTTPAddr)

	if v := getEnvString("SECURITIES", ""); v != "" {
		c.Securities = parseSecurities(v)
	}

	c.Pool.MaxOrders = getEnvInt64("POOL_MAX_ORDERS", c.Pool.MaxOrders)
	c.Pool.HeapLimitBytes = uint64(getEnvInt64("POOL_HEAP_LIMIT_BYTES", int64(c.Pool.HeapLimitBytes)))

	c.WAL.Dir = getEnvString("WAL_DIR", c.WAL.Dir)
	c.WAL.SyncEveryWrite = getEnvBool("WAL_SYNC_EVERY_WRITE", c.WAL.SyncEveryWrite)
	c.Outbox.Dir = getEnvString("OUTBOX_DIR", c.Outbox.Dir)
	c.Snapshot.Dir = getEnvString("SNAPSHOT_DIR", c.Snapshot.Dir)
	c.Snapshot.Interval = getEnvDuration("SNAPSHOT_INTERVAL", c.Snapshot.Interval)

	c.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Client = getEnvString("KAFKA_CLIENT", c.Kafka.Client)
	if v := getEnvString("KAFKA_BROKERS", ""); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Kafka.Topic = getEnvString("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.Acks = getEnvString("KAFKA_ACKS", c.Kafka.Acks)
	c.Kafka.Compression = getEnvString("KAFKA_COMPRESSION", c.Kafka.Compression)

	c.Log.Level = getEnvString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvString("LOG_FORMAT", c.Log.Format)
}

// Validate checks the configuration and fills in zero values that have a
// safe default.
func (c *Config) Validate() error {
	if len(c.Securities) == 0 {
		return fmt.Errorf("at least one security is required")
	}
	seen := make(map[string]bool, len(c.Securities))
	for i := range c.Securities {
		s := &c.Securities[i]
		if s.Symbol == "" {
			return fmt.Errorf("securities[%d].symbol is required", i)
		}
		if seen[s.Symbol] {
			return fmt.Errorf("security %q listed twice", s.Symbol)
		}
		seen[s.Symbol] = true
		if s.TickSize <= 0 {
			s.TickSize = 1
		}
		if s.LotSize <= 0 {
			s.LotSize = 1
		}
	}
	if c.Server.PriceScale < 0 || c.Server.PriceScale > 12 {
		return fmt.Errorf("server.price_scale must be between 0 and 12")
	}
	if c.Server.QueueSize <= 0 {
		c.Server.QueueSize = 4096
	}
	if c.WAL.Dir == "" {
		return fmt.Errorf("wal.dir is required")
	}
	if c.Outbox.Dir == "" {
		return fmt.Errorf("outbox.dir is required")
	}
	if c.Kafka.Enabled {
		switch c.Kafka.Client {
		case "sarama", "kafka-go":
		default:
			return fmt.Errorf("kafka.client must be sarama or kafka-go, got %q", c.Kafka.Client)
		}
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")
		}
		switch c.Kafka.Acks {
		case "", "all", "one", "none":
		default:
			return fmt.Errorf("kafka.acks must be all, one or none, got %q", c.Kafka.Acks)
		}
		switch c.Kafka.Compression {
		case "", "none", "gzip", "snappy", "lz4", "zstd":
		default:
			return fmt.Errorf("kafka.compression %q is not supported", c.Kafka.Compression)
		}
	}
	return nil
}

// parseSecurities reads "SYM[:tick[:lot]],..." lists.
func parseSecurities(v string) []SecurityConfig {
	var out []SecurityConfig
	for _, item := range strings.Split(v, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if parts[0] == "" {
			continue
		}
		s := SecurityConfig{Symbol: parts[0], TickSize: 1, LotSize: 1}
		if len(parts) > 1 {
			s.TickSize, _ = strconv.ParseInt(parts[1], 10, 64)
		}
		if len(parts) > 2 {
			s.LotSize, _ = strconv.ParseInt(parts[2], 10, 64)
		}
		out = append(out, s)
	}
	return out
}

func getEnvString(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
