package service

import (
	"context"
	"errors"
	"time"

	"rps_wager/internal/domain"
	"rps_wager/internal/repository"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Ledger applies balance movements and statistics inside a caller's unit of
// work. Nothing here commits on its own: the match transition that motivated
// a movement is always written in the same Tx.
type Ledger struct {
	initialCoins int64
	clock        Clock
}

func NewLedger(initialCoins int64, clock Clock) *Ledger {
	return &Ledger{initialCoins: initialCoins, clock: clock}
}

// Ensure loads a player, provisioning a fresh wallet on first sight.
func (l *Ledger) Ensure(ctx context.Context, tx repository.Tx, playerID string) (*domain.Player, error) {
	p, err := tx.GetPlayer(ctx, playerID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		return nil, err
	}
	return tx.CreatePlayer(ctx, &domain.Player{
		ID:        playerID,
		Balance:   l.initialCoins,
		CreatedAt: l.clock.Now().UTC(),
	})
}

// GetBalance returns the player's current balance
func (l *Ledger) GetBalance(ctx context.Context, tx repository.Tx, playerID string) (int64, error) {
	p, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return 0, err
	}
	return p.Balance, nil
}

// TryDebit escrows amount for matchID. It reports false and writes nothing
// when the balance is short.
func (l *Ledger) TryDebit(ctx context.Context, tx repository.Tx, playerID, matchID string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	p, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return false, err
	}
	if p.Balance < amount {
		return false, nil
	}
	p.Balance -= amount
	if err := tx.PutPlayer(ctx, p); err != nil {
		return false, err
	}
	return true, tx.AppendLedger(ctx, &domain.LedgerEntry{
		PlayerID:  playerID,
		MatchID:   matchID,
		Kind:      domain.LedgerStakeEscrow,
		Amount:    -amount,
		CreatedAt: l.clock.Now().UTC(),
	})
}

// Credit adds amount and returns the new balance
func (l *Ledger) Credit(ctx context.Context, tx repository.Tx, playerID, matchID string, amount int64, kind domain.LedgerKind) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	p, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return 0, err
	}
	p.Balance += amount
	if err := tx.PutPlayer(ctx, p); err != nil {
		return 0, err
	}
	err = tx.AppendLedger(ctx, &domain.LedgerEntry{
		PlayerID:  playerID,
		MatchID:   matchID,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: l.clock.Now().UTC(),
	})
	return p.Balance, err
}

// RecordOutcome bumps lifetime statistics. stakeDelta feeds the coin totals
// and is ignored for draws.
func (l *Ledger) RecordOutcome(ctx context.Context, tx repository.Tx, playerID string, outcome domain.Outcome, stakeDelta int64) error {
	p, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	switch outcome {
	case domain.OutcomeWin:
		p.Wins++
		p.TotalCoinsWon += stakeDelta
	case domain.OutcomeLoss:
		p.Losses++
		p.TotalCoinsLost += stakeDelta
	default:
		p.Draws++
	}
	return tx.PutPlayer(ctx, p)
}

// SetCurrentMatch points the player at matchID ("" clears it).
func (l *Ledger) SetCurrentMatch(ctx context.Context, tx repository.Tx, playerID, matchID string) error {
	p, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if p.CurrentMatch == matchID {
		return nil
	}
	p.CurrentMatch = matchID
	return tx.PutPlayer(ctx, p)
}

// ClearCurrentMatch clears the pointer only if it still names matchID.
func (l *Ledger) ClearCurrentMatch(ctx context.Context, tx repository.Tx, playerID, matchID string) error {
	p, err := tx.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if p.CurrentMatch != matchID {
		return nil
	}
	p.CurrentMatch = ""
	return tx.PutPlayer(ctx, p)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
