package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/treecep/internal/ir"
)

// StreamAdder is the part of a Redis client the sink needs.
// *redis.Client and *redis.ClusterClient satisfy it.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisConfig configures a RedisSink.
type RedisConfig struct {
	// Address is the Redis server address (e.g. "localhost:6379").
	Address string

	// Password for Redis authentication (optional).
	Password string

	// Database number to use.
	Database int

	// Stream is the key matches are appended to.
	Stream string

	// MaxLen caps the stream length approximately. Zero keeps everything.
	MaxLen int64

	// Timeout bounds each Redis operation.
	Timeout time.Duration
}

// DefaultRedisConfig returns defaults for address.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Stream:  "treecep:matches",
		Timeout: 5 * time.Second,
	}
}

// RedisSink appends every match to a Redis stream with XADD.
type RedisSink struct {
	cfg    RedisConfig
	client StreamAdder
	closer func() error
}

// NewRedisSink connects to the server in cfg.
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Address, err)
	}

	s := NewRedisSinkWithClient(cfg, client)
	s.closer = client.Close
	return s, nil
}

// NewRedisSinkWithClient uses an existing client, which the sink does not
// close.
func NewRedisSinkWithClient(cfg RedisConfig, client StreamAdder) *RedisSink {
	return &RedisSink{cfg: cfg, client: client}
}

// Emit implements Sink.
func (s *RedisSink) Emit(ctx context.Context, m ir.Match) error {
	args, err := s.xaddArgs(m)
	if err != nil {
		return err
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd match %s to %s: %w", m.ID, s.cfg.Stream, err)
	}
	return nil
}

func (s *RedisSink) xaddArgs(m ir.Match) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal match %s: %w", m.ID, err)
	}
	args := &redis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: map[string]any{
			"id":      m.ID,
			"pattern": m.Pattern,
			"seq":     m.Seq,
			"match":   string(payload),
		},
	}
	if s.cfg.MaxLen > 0 {
		args.MaxLen = s.cfg.MaxLen
		args.Approx = true
	}
	return args, nil
}

// Close implements Sink.
func (s *RedisSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
