package repository

import (
	"context"
	"errors"

	"rps_wager/internal/domain"
)

// ErrConflict is returned by RunInTx when a concurrent writer touched data the
// unit of work depended on. The whole unit should be retried with fresh reads.
var ErrConflict = errors.New("concurrent modification")

// Tx is a unit of work over matches, players and the ledger journal.
// Either every write made through it is committed, or none is.
type Tx interface {
	// GetMatch returns domain.ErrMatchNotFound when absent.
	GetMatch(ctx context.Context, id string) (*domain.Match, error)
	PutMatch(ctx context.Context, m *domain.Match) error
	DeleteMatch(ctx context.Context, id string) error
	// CompareAndSwapStatus moves the match from one status to another and
	// reports false, without writing, when the current status differs.
	CompareAndSwapStatus(ctx context.Context, id string, from, to domain.Status) (bool, error)

	// GetPlayer returns domain.ErrPlayerNotFound when absent.
	GetPlayer(ctx context.Context, id string) (*domain.Player, error)
	PutPlayer(ctx context.Context, p *domain.Player) error
	// CreatePlayer inserts p unless a row with its id already exists and
	// returns the stored row. A row committed first by another unit wins.
	CreatePlayer(ctx context.Context, p *domain.Player) (*domain.Player, error)

	AppendLedger(ctx context.Context, e *domain.LedgerEntry) error
}

// Store is keyed storage of match and player records.
type Store interface {
	// RunInTx runs fn in a single unit of work. An error from fn aborts it.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetMatch(ctx context.Context, id string) (*domain.Match, error)
	GetPlayer(ctx context.Context, id string) (*domain.Player, error)
	// ListMatches returns matches in the given status ordered by creation time.
	ListMatches(ctx context.Context, status domain.Status) ([]*domain.Match, error)
	// LedgerEntries returns the newest entries for a player first.
	LedgerEntries(ctx context.Context, playerID string, limit int) ([]*domain.LedgerEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
