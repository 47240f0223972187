package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"axionx/cmd/internal/pgstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultChannel is the NOTIFY channel and the Redis pub/sub channel.
const DefaultChannel = "axionx_changes"

const (
	minBackoff = 250 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// PostgresBus publishes with pg_notify and delivers through one LISTEN connection,
// so every replica sees every change. Subscribers receive nothing until Run is
// listening.
type PostgresBus struct {
	pool    *pgxpool.Pool
	channel string
	local   *LocalBus
	log     *slog.Logger
}

func NewPostgresBus(pool *pgxpool.Pool, channel string, log *slog.Logger) (*PostgresBus, error) {
	if pool == nil {
		return nil, errors.New("changes: nil pool")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if !pgstore.ValidIdent(channel) {
		return nil, fmt.Errorf("changes: invalid channel %q", channel)
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresBus{
		pool:    pool,
		channel: channel,
		local:   NewLocalBus(),
		log:     log.With("component", "changes.postgres"),
	}, nil
}

func (b *PostgresBus) Publish(ctx context.Context, c Change) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, b.channel, string(raw))
	return err
}

func (b *PostgresBus) Subscribe(tables ...string) (<-chan Change, func()) {
	return b.local.Subscribe(tables...)
}

func (b *PostgresBus) Close() error { return b.local.Close() }

// Run listens until ctx ends, reconnecting with exponential backoff.
func (b *PostgresBus) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		connected, err := b.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = minBackoff
		}
		b.log.Warn("changes.listen.fail", "err", err, "retry_in", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (b *PostgresBus) listen(ctx context.Context) (bool, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(cctx, "UNLISTEN *"); err != nil {
			_ = conn.Conn().Close(cctx)
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return false, err
	}
	b.log.Info("changes.listen.ok", "channel", b.channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		var c Change
		if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
			b.log.Warn("changes.payload.bad", "err", err)
			continue
		}
		_ = b.local.Publish(ctx, c)
	}
}
