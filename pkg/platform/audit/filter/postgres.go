package filter

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"auditd/pkg/platform/audit"
)

// Querier is the subset of pgxpool.Pool used by PostgresSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const filterSchema = `
CREATE TABLE IF NOT EXISTS audit_filters (
	realm      TEXT        NOT NULL,
	topic      TEXT        NOT NULL,
	enabled    BOOLEAN     NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (realm, topic)
)`

// PostgresSource reads and writes filter decisions in the audit_filters table.
type PostgresSource struct {
	db Querier
}

func NewPostgresSource(db Querier) *PostgresSource {
	return &PostgresSource{db: db}
}

// Migrate creates the audit_filters table if it does not exist.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, filterSchema); err != nil {
		return fmt.Errorf("create audit_filters: %w", err)
	}
	return nil
}

func (s *PostgresSource) Load(ctx context.Context) (map[Key]bool, error) {
	rows, err := s.db.Query(ctx, `SELECT realm, topic, enabled FROM audit_filters`)
	if err != nil {
		return nil, fmt.Errorf("query audit filters: %w", err)
	}
	defer rows.Close()

	decisions := make(map[Key]bool)
	for rows.Next() {
		var (
			realm   string
			topic   string
			enabled bool
		)
		if err := rows.Scan(&realm, &topic, &enabled); err != nil {
			return nil, fmt.Errorf("scan audit filter: %w", err)
		}
		t := audit.Topic(topic)
		if !t.Valid() {
			return nil, fmt.Errorf("audit filter for realm %q has unknown topic %q", realm, topic)
		}
		decisions[Key{Realm: realm, Topic: t}] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit filters: %w", err)
	}
	return decisions, nil
}

func (s *PostgresSource) Set(ctx context.Context, key Key, enabled bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_filters (realm, topic, enabled, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (realm, topic) DO UPDATE
		SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at
	`, key.Realm, string(key.Topic), enabled)
	if err != nil {
		return fmt.Errorf("upsert audit filter: %w", err)
	}
	return nil
}
