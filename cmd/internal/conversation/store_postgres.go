package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"axionx/cmd/identity/ids"
	"axionx/cmd/internal/changes"
	"axionx/cmd/internal/pgstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the conversations and messages tables.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
	bus    changes.Bus
	log    *slog.Logger
	now    func() time.Time
}

type PostgresOption func(*PostgresStore) error

func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		v, err := pgstore.CheckSchema(schema)
		if err != nil {
			return fmt.Errorf("conversation: %w", err)
		}
		s.schema = v
		return nil
	}
}

func WithLogger(log *slog.Logger) PostgresOption {
	return func(s *PostgresStore) error {
		if log != nil {
			s.log = log
		}
		return nil
	}
}

// NewPostgresStore publishes on bus, or on a private LocalBus when bus is nil.
func NewPostgresStore(pool *pgxpool.Pool, bus changes.Bus, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("conversation: nil pool")
	}
	if bus == nil {
		bus = changes.NewLocalBus()
	}
	st := &PostgresStore{
		pool:   pool,
		schema: pgstore.DefaultSchema,
		bus:    bus,
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *PostgresStore) table(name string) string { return pgstore.Ident(s.schema, name) }

func (s *PostgresStore) ListConversations(ctx context.Context, ownerID string) ([]Conversation, error) {
	ownerID, err := checkOwner("conversation.List", ownerID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		   FROM `+s.table("conversations")+`
		  WHERE user_id = $1
		  ORDER BY updated_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Conversation, error) {
		var c Conversation
		err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	})
}

func (s *PostgresStore) CreateConversation(ctx context.Context, ownerID, title string) (Conversation, error) {
	const op = "conversation.Create"

	ownerID, err := checkOwner(op, ownerID)
	if err != nil {
		return Conversation{}, err
	}
	title, err = checkTitle(op, title)
	if err != nil {
		return Conversation{}, err
	}

	now := s.now()
	id, err := ids.New(now)
	if err != nil {
		return Conversation{}, err
	}
	c := Conversation{ID: id, OwnerID: ownerID, Title: title, CreatedAt: now, UpdatedAt: now}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table("conversations")+` (id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)`,
		c.ID, c.OwnerID, c.Title, now,
	)
	if err != nil {
		if pgstore.ForeignKeyViolation(err) {
			return Conversation{}, notFound(op, "user")
		}
		return Conversation{}, err
	}

	s.publish(ctx, changes.Change{Table: changes.TableConversations, Op: changes.OpInsert, ID: id, OwnerID: ownerID})
	return c, nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, ownerID, id string) error {
	const op = "conversation.Delete"

	ownerID, err := checkOwner(op, ownerID)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table("conversations")+` WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(op, "conversation")
	}

	s.publish(ctx, changes.Change{Table: changes.TableConversations, Op: changes.OpDelete, ID: id, OwnerID: ownerID})
	return nil
}

// AppendMessage bumps updated_at and inserts the message in one transaction.
func (s *PostgresStore) AppendMessage(ctx context.Context, ownerID, conversationID string, role Role, content string) (Message, error) {
	const op = "conversation.AppendMessage"

	ownerID, err := checkOwner(op, ownerID)
	if err != nil {
		return Message{}, err
	}
	if !role.Valid() {
		return Message{}, invalid(op, "role must be user or assistant")
	}

	now := s.now()
	id, err := ids.New(now)
	if err != nil {
		return Message{}, err
	}
	m := Message{ID: id, ConversationID: conversationID, Role: role, Content: content, CreatedAt: now}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE `+s.table("conversations")+`
		    SET updated_at = GREATEST(updated_at, $3)
		  WHERE id = $1 AND user_id = $2`,
		conversationID, ownerID, now,
	)
	if err != nil {
		return Message{}, err
	}
	if tag.RowsAffected() == 0 {
		return Message{}, notFound(op, "conversation")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("messages")+` (id, conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, m.CreatedAt,
	)
	if err != nil {
		if pgstore.ForeignKeyViolation(err) {
			return Message{}, notFound(op, "conversation")
		}
		return Message{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	s.publish(ctx, changes.Change{Table: changes.TableMessages, Op: changes.OpInsert, ID: id, OwnerID: ownerID})
	return m, nil
}

func (s *PostgresStore) LoadMessages(ctx context.Context, ownerID, conversationID string) ([]Message, error) {
	const op = "conversation.LoadMessages"

	ownerID, err := checkOwner(op, ownerID)
	if err != nil {
		return nil, err
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table("conversations")+` WHERE id = $1 AND user_id = $2)`,
		conversationID, ownerID,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound(op, "conversation")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		   FROM `+s.table("messages")+`
		  WHERE conversation_id = $1
		  ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		var role string
		err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt)
		m.Role = Role(role)
		return m, err
	})
}

func (s *PostgresStore) Subscribe() (<-chan changes.Change, func()) { return subscribe(s.bus) }

// publish runs after commit; a lost notification only delays sidebar refreshes.
func (s *PostgresStore) publish(ctx context.Context, c changes.Change) {
	if err := s.bus.Publish(ctx, c); err != nil {
		s.log.Warn("conversation.publish.fail", "table", c.Table, "op", c.Op, "err", err)
	}
}
