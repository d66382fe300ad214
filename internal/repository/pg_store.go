package repository

import (
	"context"
	"errors"

	"rps_wager/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore runs every unit of work in one database transaction and locks
// the rows it reads with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db      *pgxpool.Pool
	players *PlayerRepository
	matches *MatchRepository
	ledger  *LedgerRepository
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		db:      db,
		players: NewPlayerRepository(db),
		matches: NewMatchRepository(db),
		ledger:  NewLedgerRepository(db),
	}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{s: s, tx: tx}); err != nil {
		return mapPgError(err)
	}
	return mapPgError(tx.Commit(ctx))
}

// mapPgError turns deadlock and serialization failures into ErrConflict.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return ErrConflict
	}
	return err
}

func (s *PostgresStore) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	return s.matches.GetByID(ctx, id)
}

func (s *PostgresStore) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	return s.players.GetByID(ctx, id)
}

func (s *PostgresStore) ListMatches(ctx context.Context, status domain.Status) ([]*domain.Match, error) {
	return s.matches.ListByStatus(ctx, status)
}

func (s *PostgresStore) LedgerEntries(ctx context.Context, playerID string, limit int) ([]*domain.LedgerEntry, error) {
	return s.ledger.GetByPlayerID(ctx, playerID, limit)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

type pgTx struct {
	s  *PostgresStore
	tx pgx.Tx
}

func (t *pgTx) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	return t.s.matches.GetForUpdate(ctx, t.tx, id)
}

func (t *pgTx) PutMatch(ctx context.Context, m *domain.Match) error {
	return t.s.matches.UpsertWithTx(ctx, t.tx, m)
}

func (t *pgTx) DeleteMatch(ctx context.Context, id string) error {
	return t.s.matches.DeleteWithTx(ctx, t.tx, id)
}

func (t *pgTx) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.Status) (bool, error) {
	return t.s.matches.CompareAndSwapStatusWithTx(ctx, t.tx, id, from, to)
}

func (t *pgTx) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	return t.s.players.GetForUpdate(ctx, t.tx, id)
}

func (t *pgTx) PutPlayer(ctx context.Context, p *domain.Player) error {
	return t.s.players.UpsertWithTx(ctx, t.tx, p)
}

// CreatePlayer relies on the unique key: a concurrent insert blocks until the
// first one commits, and the locking re-read then sees the committed row.
func (t *pgTx) CreatePlayer(ctx context.Context, p *domain.Player) (*domain.Player, error) {
	if err := t.s.players.CreateIfAbsentWithTx(ctx, t.tx, p); err != nil {
		return nil, err
	}
	return t.s.players.GetForUpdate(ctx, t.tx, p.ID)
}

func (t *pgTx) AppendLedger(ctx context.Context, e *domain.LedgerEntry) error {
	return t.s.ledger.CreateWithTx(ctx, t.tx, e)
}
