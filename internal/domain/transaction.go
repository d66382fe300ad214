package domain

import "time"

// LedgerKind classifies a ledger journal entry.
type LedgerKind string

const (
	LedgerStakeEscrow LedgerKind = "stake_escrow"
	LedgerPayout      LedgerKind = "payout"
	LedgerRefund      LedgerKind = "refund"
)

// LedgerEntry is one balance movement, written in the same unit of work as
// the match transition that caused it.
type LedgerEntry struct {
	ID        int64      `db:"id" json:"id"`
	PlayerID  string     `db:"player_id" json:"player_id"`
	MatchID   string     `db:"match_id" json:"match_id"`
	Kind      LedgerKind `db:"kind" json:"kind"`
	Amount    int64      `db:"amount" json:"amount"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
