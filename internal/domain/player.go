package domain

import "time"

// Player is a wallet plus lifetime statistics keyed by a caller-supplied id.
type Player struct {
	ID             string    `db:"id" json:"id"`
	Balance        int64     `db:"balance" json:"balance"`
	CurrentMatch   string    `db:"current_match" json:"current_match,omitempty"`
	Wins           int64     `db:"wins" json:"wins"`
	Losses         int64     `db:"losses" json:"losses"`
	Draws          int64     `db:"draws" json:"draws"`
	TotalCoinsWon  int64     `db:"total_coins_won" json:"total_coins_won"`
	TotalCoinsLost int64     `db:"total_coins_lost" json:"total_coins_lost"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Outcome is a per-player settlement outcome used for statistics.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Clone returns a copy safe to mutate.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
