package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

// DecisionRepository is the write-only sink for finished decision records.
type DecisionRepository struct {
	db *sql.DB
}

func NewDecisionRepository(db *sql.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DecisionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026031501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS invoice_decisions (
	invoice_id INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	document_type TEXT NOT NULL,
	decision TEXT NOT NULL,
	risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	policy_version TEXT NOT NULL DEFAULT '',
	record JSONB NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (invoice_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_invoice_decisions_decision ON invoice_decisions(decision);
CREATE INDEX IF NOT EXISTS idx_invoice_decisions_processed_at ON invoice_decisions(processed_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Save upserts a record keyed by invoice id and content fingerprint, so a
// redelivered message overwrites its earlier decision.
func (r *DecisionRepository) Save(ctx context.Context, record *domain.DecisionRecord) error {
	if record == nil {
		return domain.WrapError(domain.ErrInvalidInput, "save decision", fmt.Errorf("record is nil"))
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal decision record: %w", err)
	}

	const query = `
INSERT INTO invoice_decisions (invoice_id, content_hash, document_type, decision, risk_score, status, policy_version, record, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (invoice_id, content_hash) DO UPDATE SET
	document_type = EXCLUDED.document_type,
	decision = EXCLUDED.decision,
	risk_score = EXCLUDED.risk_score,
	status = EXCLUDED.status,
	policy_version = EXCLUDED.policy_version,
	record = EXCLUDED.record,
	processed_at = EXCLUDED.processed_at`
	_, err = r.db.ExecContext(ctx, query,
		record.InvoiceID,
		record.ContentHash,
		string(record.Metadata.Type),
		decisionColumn(record),
		record.Metadata.RiskScore,
		string(record.Status),
		record.Audit.PolicyVersion,
		payload,
		record.ProcessingTimestamp,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// decisionColumn stores "failed" for records that never reached a decision.
func decisionColumn(record *domain.DecisionRecord) string {
	if record.Approval.Decision == "" {
		return string(domain.StatusFailed)
	}
	return string(record.Approval.Decision)
}
