package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	audit "auditd/pkg/platform/audit"
	txcontext "auditd/pkg/platform/tx"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id             TEXT        PRIMARY KEY,
	topic          TEXT        NOT NULL,
	realm          TEXT        NOT NULL,
	transaction_id TEXT,
	event_time     TIMESTAMPTZ NOT NULL,
	payload        JSONB       NOT NULL,
	stored_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS audit_records_realm_time_idx ON audit_records (realm, event_time DESC);
CREATE INDEX IF NOT EXISTS audit_records_time_idx ON audit_records (event_time DESC)`

// Handler stores records in the audit_records table. Inserts are idempotent on
// the record id so a redelivered record is stored once.
type Handler struct {
	name        string
	db          *sql.DB
	useCallerTx bool
}

// Option configures the Handler.
type Option func(*Handler)

// WithCallerTx writes through the *sql.Tx carried in the delivery context, if
// any, so the record commits with the audited operation. The insert runs under
// a savepoint: a failed or cancelled insert is rolled back to it and leaves the
// caller's transaction usable. Only meaningful with a synchronous publisher.
func WithCallerTx() Option {
	return func(h *Handler) {
		h.useCallerTx = true
	}
}

func New(name string, db *sql.DB, opts ...Option) *Handler {
	h := &Handler{name: name, db: db}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Migrate creates the audit_records table and its indexes.
func (h *Handler) Migrate(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create audit_records: %w", err)
	}
	return nil
}

func (h *Handler) Name() string { return h.name }

func (h *Handler) Handle(ctx context.Context, rec audit.Record) error {
	payload, err := rec.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	args := []any{
		rec.ID(),
		string(rec.Topic()),
		rec.Realm(),
		sql.NullString{String: rec.TransactionID(), Valid: rec.TransactionID() != ""},
		rec.Timestamp(),
		string(payload),
	}

	if h.useCallerTx {
		if tx, ok := txcontext.From(ctx); ok {
			return insertInTx(ctx, tx, args)
		}
	}
	if _, err := h.db.ExecContext(ctx, insertQuery, args...); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

const insertQuery = `
	INSERT INTO audit_records (id, topic, realm, transaction_id, event_time, payload)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING
`

// insertInTx only lets ctx cancel the insert itself. Savepoint statements run
// detached so a cancellation cannot abort the caller's transaction.
func insertInTx(ctx context.Context, tx *sql.Tx, args []any) error {
	detached := context.WithoutCancel(ctx)
	if _, err := tx.ExecContext(detached, `SAVEPOINT audit_record`); err != nil {
		return fmt.Errorf("audit savepoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertQuery, args...); err != nil {
		err = fmt.Errorf("insert audit record: %w", err)
		if _, rbErr := tx.ExecContext(detached, `ROLLBACK TO SAVEPOINT audit_record`); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback audit savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := tx.ExecContext(detached, `RELEASE SAVEPOINT audit_record`); err != nil {
		return fmt.Errorf("release audit savepoint: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first, optionally restricted to topics.
func (h *Handler) ListRecent(ctx context.Context, limit int, topics ...audit.Topic) ([]audit.Record, error) {
	query := `
		SELECT payload
		FROM audit_records
		WHERE cardinality($2::text[]) = 0 OR topic = ANY($2)
		ORDER BY event_time DESC, stored_at DESC
		LIMIT $1
	`
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = string(t)
	}

	rows, err := h.db.QueryContext(ctx, query, limit, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByRealm returns every record for realm, oldest first.
func (h *Handler) ListByRealm(ctx context.Context, realm string) ([]audit.Record, error) {
	query := `
		SELECT payload
		FROM audit_records
		WHERE realm = $1
		ORDER BY event_time ASC, stored_at ASC
	`
	rows, err := h.db.QueryContext(ctx, query, realm)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	records := []audit.Record{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec, err := audit.DecodeRecord(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
