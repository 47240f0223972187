package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisBus fans changes out over Redis pub/sub. Like PostgresBus it delivers only
// what comes back from the server.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	local   *LocalBus
	log     *slog.Logger
}

func NewRedisBus(ctx context.Context, cfg RedisConfig, log *slog.Logger) (*RedisBus, error) {
	if cfg.Addr == "" {
		return nil, errors.New("changes: missing redis addr")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("changes: redis ping: %w", err)
	}

	return &RedisBus{
		rdb:     rdb,
		channel: cfg.Channel,
		local:   NewLocalBus(),
		log:     log.With("component", "changes.redis"),
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, c Change) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisBus) Subscribe(tables ...string) (<-chan Change, func()) {
	return b.local.Subscribe(tables...)
}

// Run forwards Redis messages into the local fan-out until ctx ends. go-redis
// resubscribes on its own after connection loss.
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("changes: redis subscribe: %w", err)
	}
	b.log.Info("changes.listen.ok", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok || m == nil {
				return errors.New("changes: redis subscription closed")
			}
			var c Change
			if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
				b.log.Warn("changes.payload.bad", "err", err)
				continue
			}
			_ = b.local.Publish(ctx, c)
		}
	}
}

func (b *RedisBus) Close() error {
	_ = b.local.Close()
	return b.rdb.Close()
}
