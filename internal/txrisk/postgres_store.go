package txrisk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Save(ctx context.Context, a *Assessment) error {
	factors, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO transaction_assessments
			(id, user_id, amount_usd, score, risk_level, recommendation, factors, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.UserID, a.AmountUSD, a.Score, a.RiskLevel, a.Recommendation, factors, a.CreatedAt)
	return err
}

func (p *PostgresStore) ListForUser(ctx context.Context, userID string, limit int) ([]*Assessment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, amount_usd, score, risk_level, recommendation, factors, created_at
		FROM transaction_assessments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Assessment
	for rows.Next() {
		var a Assessment
		var factors []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.AmountUSD, &a.Score,
			&a.RiskLevel, &a.Recommendation, &factors, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(factors) > 0 {
			if err := json.Unmarshal(factors, &a.Factors); err != nil {
				return nil, fmt.Errorf("unmarshal factors: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
