package service

import (
	"context"
	"errors"
	"time"

	"rps_wager/internal/domain"
	"rps_wager/internal/repository"
)

// OpenMatch is a joinable match as listed to a prospective joiner.
type OpenMatch struct {
	MatchID   string    `json:"match_id"`
	Stake     int64     `json:"stake"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GetOpenMatches lists Waiting matches playerID could join right now: not
// their own, and affordable by both sides.
func (s *MatchService) GetOpenMatches(ctx context.Context, playerID string) ([]OpenMatch, error) {
	balance := s.opts.InitialCoins
	p, err := s.store.GetPlayer(ctx, playerID)
	switch {
	case err == nil:
		balance = p.Balance
	case !errors.Is(err, domain.ErrPlayerNotFound):
		return nil, err
	}

	waiting, err := s.store.ListMatches(ctx, domain.StatusWaiting)
	if err != nil {
		return nil, err
	}

	res := make([]OpenMatch, 0, len(waiting))
	for _, m := range waiting {
		if m.CreatorID == playerID || m.JoinerID != "" || m.Stake > balance {
			continue
		}
		creator, err := s.store.GetPlayer(ctx, m.CreatorID)
		if err != nil {
			if errors.Is(err, domain.ErrPlayerNotFound) {
				continue
			}
			return nil, err
		}
		if creator.Balance < m.Stake {
			continue
		}
		res = append(res, OpenMatch{MatchID: m.ID, Stake: m.Stake, CreatorID: m.CreatorID, CreatedAt: m.CreatedAt})
	}
	return res, nil
}

// Snapshot is the public view of a match. Moves stay hidden until settlement.
type Snapshot struct {
	MatchID         string              `json:"match_id"`
	Status          domain.Status       `json:"status"`
	Stake           int64               `json:"stake"`
	CreatorID       string              `json:"creator_id"`
	JoinerID        string              `json:"joiner_id,omitempty"`
	CreatorMoved    bool                `json:"creator_moved"`
	JoinerMoved     bool                `json:"joiner_moved"`
	CreatorMove     domain.Move         `json:"creator_move,omitempty"`
	JoinerMove      domain.Move         `json:"joiner_move,omitempty"`
	CreatorAuto     bool                `json:"creator_auto,omitempty"`
	JoinerAuto      bool                `json:"joiner_auto,omitempty"`
	Result          domain.Result       `json:"result,omitempty"`
	CreatorRematch  domain.RematchState `json:"creator_rematch,omitempty"`
	JoinerRematch   domain.RematchState `json:"joiner_rematch,omitempty"`
	PreviousMatchID string              `json:"previous_match_id,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	FinishedAt      *time.Time          `json:"finished_at,omitempty"`
	// Deadline is when the move timer fires, for Playing matches.
	Deadline *time.Time `json:"deadline,omitempty"`
}

func (s *MatchService) GetMatchSnapshot(ctx context.Context, matchID string) (*Snapshot, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		MatchID:         m.ID,
		Status:          m.Status,
		Stake:           m.Stake,
		CreatorID:       m.CreatorID,
		JoinerID:        m.JoinerID,
		CreatorMoved:    m.CreatorMove != domain.MoveNone,
		JoinerMoved:     m.JoinerMove != domain.MoveNone,
		PreviousMatchID: m.PreviousMatchID,
		CreatedAt:       m.CreatedAt,
		StartedAt:       m.StartedAt,
		FinishedAt:      m.FinishedAt,
	}
	switch m.Status {
	case domain.StatusPlaying:
		if m.StartedAt != nil {
			d := m.StartedAt.Add(s.opts.MoveTimeout)
			snap.Deadline = &d
		}
	case domain.StatusFinished:
		snap.CreatorMove, snap.JoinerMove = m.CreatorMove, m.JoinerMove
		snap.CreatorAuto, snap.JoinerAuto = m.CreatorAuto, m.JoinerAuto
		snap.Result = m.Result
		snap.CreatorRematch, snap.JoinerRematch = m.CreatorRematch, m.JoinerRematch
	}
	return snap, nil
}

// GetPlayer returns the player's wallet and statistics, provisioning a new
// wallet on first sight.
func (s *MatchService) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	if playerID == "" {
		return nil, domain.ErrPlayerNotFound
	}
	p, err := s.store.GetPlayer(ctx, playerID)
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		return p, err
	}

	unlock := s.locks.Lock(playerKey(playerID))
	defer unlock()

	err = s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		p, err = s.ledger.Ensure(ctx, tx, playerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LedgerHistory returns the newest balance movements of a player.
func (s *MatchService) LedgerHistory(ctx context.Context, playerID string, limit int) ([]*domain.LedgerEntry, error) {
	return s.store.LedgerEntries(ctx, playerID, limit)
}
