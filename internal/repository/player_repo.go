package repository

import (
	"context"
	"errors"

	"rps_wager/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const playerColumns = `id, balance, COALESCE(current_match, ''), wins, losses, draws,
	total_coins_won, total_coins_lost, created_at`

type PlayerRepository struct {
	db *pgxpool.Pool
}

func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	if err := row.Scan(
		&p.ID,
		&p.Balance,
		&p.CurrentMatch,
		&p.Wins,
		&p.Losses,
		&p.Draws,
		&p.TotalCoinsWon,
		&p.TotalCoinsLost,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PlayerRepository) GetByID(ctx context.Context, id string) (*domain.Player, error) {
	return scanPlayer(r.db.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
}

// GetForUpdate locks the player row until tx ends
func (r *PlayerRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Player, error) {
	return scanPlayer(tx.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, id))
}

// CreateIfAbsentWithTx inserts a new player row and leaves an existing one untouched
func (r *PlayerRepository) CreateIfAbsentWithTx(ctx context.Context, tx pgx.Tx, p *domain.Player) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO players (id, balance, current_match, wins, losses, draws, total_coins_won, total_coins_lost, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Balance, p.CurrentMatch, p.Wins, p.Losses, p.Draws,
		p.TotalCoinsWon, p.TotalCoinsLost, p.CreatedAt,
	)
	return err
}

// UpsertWithTx writes the whole player row within an existing transaction.
// Callers must hold the row lock from GetForUpdate.
func (r *PlayerRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, p *domain.Player) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO players (id, balance, current_match, wins, losses, draws, total_coins_won, total_coins_lost, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   balance = EXCLUDED.balance,
		   current_match = EXCLUDED.current_match,
		   wins = EXCLUDED.wins,
		   losses = EXCLUDED.losses,
		   draws = EXCLUDED.draws,
		   total_coins_won = EXCLUDED.total_coins_won,
		   total_coins_lost = EXCLUDED.total_coins_lost`,
		p.ID, p.Balance, p.CurrentMatch, p.Wins, p.Losses, p.Draws,
		p.TotalCoinsWon, p.TotalCoinsLost, p.CreatedAt,
	)
	return err
}
