package repository

import (
	"context"
	"errors"

	"rps_wager/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const matchColumns = `id, creator_id, COALESCE(joiner_id, ''), stake, status,
	creator_move, joiner_move, creator_auto, joiner_auto, result,
	created_at, started_at, finished_at, creator_rematch, joiner_rematch, previous_match_id`

type MatchRepository struct {
	db *pgxpool.Pool
}

func NewMatchRepository(db *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{db: db}
}

func scanMatch(row pgx.Row) (*domain.Match, error) {
	var m domain.Match
	if err := row.Scan(
		&m.ID,
		&m.CreatorID,
		&m.JoinerID,
		&m.Stake,
		&m.Status,
		&m.CreatorMove,
		&m.JoinerMove,
		&m.CreatorAuto,
		&m.JoinerAuto,
		&m.Result,
		&m.CreatedAt,
		&m.StartedAt,
		&m.FinishedAt,
		&m.CreatorRematch,
		&m.JoinerRematch,
		&m.PreviousMatchID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepository) GetByID(ctx context.Context, id string) (*domain.Match, error) {
	return scanMatch(r.db.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id))
}

func (r *MatchRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Match, error) {
	return scanMatch(tx.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, id))
}

func (r *MatchRepository) ListByStatus(ctx context.Context, status domain.Status) ([]*domain.Match, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MatchRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, m *domain.Match) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO matches (id, creator_id, joiner_id, stake, status, creator_move, joiner_move,
		   creator_auto, joiner_auto, result, created_at, started_at, finished_at,
		   creator_rematch, joiner_rematch, previous_match_id)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
		   joiner_id = EXCLUDED.joiner_id,
		   status = EXCLUDED.status,
		   creator_move = EXCLUDED.creator_move,
		   joiner_move = EXCLUDED.joiner_move,
		   creator_auto = EXCLUDED.creator_auto,
		   joiner_auto = EXCLUDED.joiner_auto,
		   result = EXCLUDED.result,
		   started_at = EXCLUDED.started_at,
		   finished_at = EXCLUDED.finished_at,
		   creator_rematch = EXCLUDED.creator_rematch,
		   joiner_rematch = EXCLUDED.joiner_rematch`,
		m.ID, m.CreatorID, m.JoinerID, m.Stake, m.Status, m.CreatorMove, m.JoinerMove,
		m.CreatorAuto, m.JoinerAuto, m.Result, m.CreatedAt, m.StartedAt, m.FinishedAt,
		m.CreatorRematch, m.JoinerRematch, m.PreviousMatchID,
	)
	return err
}

// CompareAndSwapStatusWithTx only updates when the stored status still equals from
func (r *MatchRepository) CompareAndSwapStatusWithTx(ctx context.Context, tx pgx.Tx, id string, from, to domain.Status) (bool, error) {
	tag, err := tx.Exec(ctx, `UPDATE matches SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *MatchRepository) DeleteWithTx(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `DELETE FROM matches WHERE id = $1`, id)
	return err
}
