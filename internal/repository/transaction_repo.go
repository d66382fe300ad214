package repository

import (
	"context"
	"time"

	"rps_wager/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetByPlayerID returns recent entries for a player
func (r *LedgerRepository) GetByPlayerID(ctx context.Context, playerID string, limit int) ([]*domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, player_id, match_id, kind, amount, created_at
		 FROM ledger_entries
		 WHERE player_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.MatchID, &e.Kind, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

// CreateWithTx inserts an entry using an existing database transaction
func (r *LedgerRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	return tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (player_id, match_id, kind, amount, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
		 RETURNING id, created_at`,
		e.PlayerID, e.MatchID, e.Kind, e.Amount, createdAt(e.CreatedAt),
	).Scan(&e.ID, &e.CreatedAt)
}

// createdAt maps the zero time to NULL so the column default applies.
func createdAt(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
