package audit

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore persists the verdict audit trail in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store. Schema is
// managed by the goose migrations under migrations/.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, r *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO verdict_audit (
			id, correlation_id, user_id, amount, location, tx_type,
			verdict, rule_verdict, ml_probability, hybrid_score,
			fraud_score, risk_level, reason, confidence, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`,
		r.ID, r.CorrelationID, r.UserID, r.Amount, r.Location, r.Type,
		r.Verdict, r.RuleVerdict, r.MLProbability, r.HybridScore,
		r.FraudScore, r.RiskLevel, r.Reason, r.Confidence, r.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, correlation_id, user_id, amount, location, tx_type,
		       verdict, rule_verdict, ml_probability, hybrid_score,
		       fraud_score, risk_level, reason, confidence, created_at
		FROM verdict_audit
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, correlation_id, user_id, amount, location, tx_type,
		       verdict, rule_verdict, ml_probability, hybrid_score,
		       fraud_score, risk_level, reason, confidence, created_at
		FROM verdict_audit WHERE id = $1`, id)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*Record, error) {
	var r Record
	var reason sql.NullString
	err := row.Scan(
		&r.ID, &r.CorrelationID, &r.UserID, &r.Amount, &r.Location, &r.Type,
		&r.Verdict, &r.RuleVerdict, &r.MLProbability, &r.HybridScore,
		&r.FraudScore, &r.RiskLevel, &reason, &r.Confidence, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		r.Reason = &reason.String
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
