package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/example/lead-intake-service/internal/models"
)

const leadsSchema = `CREATE TABLE IF NOT EXISTS leads (
	id               TEXT PRIMARY KEY,
	source           TEXT NOT NULL,
	received_at      TIMESTAMPTZ NOT NULL,
	name             TEXT NOT NULL,
	email            TEXT NOT NULL DEFAULT '',
	company          TEXT NOT NULL,
	website          TEXT NOT NULL,
	message          TEXT NOT NULL,
	budget           TEXT NOT NULL,
	timeline         TEXT NOT NULL,
	has_client_email BOOLEAN NOT NULL
)`

const leadsInsert = `INSERT INTO leads
(id, source, received_at, name, email, company, website, message, budget, timeline, has_client_email)
VALUES
(:id, :source, :received_at, :name, :email, :company, :website, :message, :budget, :timeline, :has_client_email)
ON CONFLICT (id) DO NOTHING`

type leadRow struct {
	ID             string    `db:"id"`
	Source         string    `db:"source"`
	ReceivedAt     time.Time `db:"received_at"`
	Name           string    `db:"name"`
	Email          string    `db:"email"`
	Company        string    `db:"company"`
	Website        string    `db:"website"`
	Message        string    `db:"message"`
	Budget         string    `db:"budget"`
	Timeline       string    `db:"timeline"`
	HasClientEmail bool      `db:"has_client_email"`
}

func toRow(l models.LeadRecord) leadRow {
	return leadRow{
		ID:             l.ID,
		Source:         l.Source,
		ReceivedAt:     l.ReceivedAt,
		Name:           l.Name,
		Email:          l.Email,
		Company:        l.Company,
		Website:        l.Website,
		Message:        l.Message,
		Budget:         l.Budget,
		Timeline:       l.Timeline,
		HasClientEmail: l.HasClientEmail,
	}
}

// namedExecer is the subset of *sqlx.DB used by Postgres.
type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Postgres writes leads to a "leads" table.
type Postgres struct {
	db     namedExecer
	closer func() error
	ping   func(ctx context.Context) error
}

// OpenPostgres connects to url and ensures the leads table exists.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	p := &Postgres{db: db, closer: db.Close, ping: db.PingContext}
	if err := p.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing handle. The caller keeps ownership of db.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db, ping: db.PingContext}
}

// EnsureSchema creates the leads table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, leadsSchema); err != nil {
		return fmt.Errorf("store: ensure leads schema: %w", err)
	}
	return nil
}

// Record inserts lead. Lead ids are generated per request, so a webhook the
// sender re-delivers is stored again as a new row; the ON CONFLICT clause only
// guards against the same record being written twice.
func (p *Postgres) Record(ctx context.Context, lead models.LeadRecord) error {
	if _, err := p.db.NamedExecContext(ctx, leadsInsert, toRow(lead)); err != nil {
		return fmt.Errorf("store: insert lead %s: %w", lead.ID, err)
	}
	return nil
}

// Check pings the database.
func (p *Postgres) Check(ctx context.Context) error {
	if p.ping == nil {
		return errors.New("store: postgres handle does not support ping")
	}
	return p.ping(ctx)
}

// Close releases the connection pool opened by OpenPostgres.
func (p *Postgres) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
