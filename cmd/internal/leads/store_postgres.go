package leads

import (
	"context"
	"fmt"

	"axionx/cmd/internal/pgstore"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore writes to demo_requests and contact_messages.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("leads: nil pool")
	}
	s, err := pgstore.CheckSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("leads: %w", err)
	}
	return &PostgresStore{pool: pool, schema: s}, nil
}

func (s *PostgresStore) CreateDemoRequest(ctx context.Context, lead DemoLead) error {
	r := lead.Request
	_, err := s.pool.Exec(ctx, `
INSERT INTO `+pgstore.Ident(s.schema, "demo_requests")+`
  (id, demo_token, full_name, company_name, email, role, company_size, phone, country, interested_areas, source, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12, $13)`,
		lead.ID, lead.Token.String(), r.FullName, r.CompanyName, r.Email, r.Role, r.CompanySize, r.Phone, r.Country,
		r.InterestedAreas, lead.Source, lead.Status, lead.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("leads.CreateDemoRequest: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateContactMessage(ctx context.Context, msg ContactMessage) error {
	f := msg.Form
	_, err := s.pool.Exec(ctx, `
INSERT INTO `+pgstore.Ident(s.schema, "contact_messages")+`
  (id, name, email, company, message, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		msg.ID, f.Name, f.Email, f.Company, f.Message, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("leads.CreateContactMessage: %w", err)
	}
	return nil
}
