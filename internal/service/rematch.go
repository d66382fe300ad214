package service

import (
	"context"
	"errors"

	"rps_wager/internal/domain"
	"rps_wager/internal/logger"
	"rps_wager/internal/metrics"
	"rps_wager/internal/repository"
)

// Rematch decline reasons.
const (
	DeclineByPlayer          = "declined"
	DeclineInsufficientFunds = "insufficient_funds"
	DeclinePlayerBusy        = "player_busy"
	DeclineExpired           = "expired"
)

// RequestRematch opts playerID into a rematch of a Finished match. The first
// request only records intent; the second one re-checks both balances and
// either starts the successor match (returned) or declines.
func (s *MatchService) RequestRematch(ctx context.Context, matchID, playerID string) (*domain.Match, error) {
	unlock := s.locks.Lock(matchKey(matchID))
	defer unlock()

	var next *domain.Match
	err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		next = nil
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusFinished {
			return domain.ErrMatchNotFinished
		}
		role := m.RoleOf(playerID)
		if role == "" {
			return domain.ErrNotParticipant
		}
		if m.RematchOf(role) != domain.RematchNotRequested {
			// repeated request from the same side changes nothing
			return nil
		}

		if m.CreatorRematch == domain.RematchNotRequested && m.JoinerRematch == domain.RematchNotRequested {
			m.SetRematch(role, domain.RematchRequested)
		} else {
			m.SetRematch(role, domain.RematchAccepted)
		}
		u.emit(domain.EventRematchAcceptedByPlayer, m.ID, domain.RematchAcceptedByPlayer{Role: role})

		if !m.RematchAgreed() {
			return tx.PutMatch(ctx, m)
		}

		reason, err := s.rematchBlocker(ctx, tx, m)
		if err != nil {
			return err
		}
		if reason != "" {
			m.ClearRematch()
			if err := tx.PutMatch(ctx, m); err != nil {
				return err
			}
			u.emit(domain.EventRematchDeclined, m.ID, domain.RematchDeclined{Reason: reason})
			u.then(func() { metrics.Rematches.WithLabelValues(reason).Inc() })
			if reason == DeclineInsufficientFunds {
				u.fail = domain.ErrInsufficientFunds
			} else {
				u.fail = domain.ErrAlreadyInMatch
			}
			return nil
		}

		next, err = s.startRematch(ctx, tx, u, m)
		return err
	})
	if errors.Is(err, domain.ErrPlayerNotFound) {
		s.dropCorrupt(ctx, matchID)
		return nil, domain.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	if next != nil {
		logger.Match(s.log, next.ID).Info("rematch started", "previous_match_id", matchID)
	}
	return next, nil
}

// rematchBlocker returns a decline reason, or "" when both players can go again.
func (s *MatchService) rematchBlocker(ctx context.Context, tx repository.Tx, m *domain.Match) (string, error) {
	for _, id := range m.Participants() {
		p, err := tx.GetPlayer(ctx, id)
		if err != nil {
			return "", err
		}
		busy, err := s.busy(ctx, tx, p)
		if err != nil {
			return "", err
		}
		if busy {
			return DeclinePlayerBusy, nil
		}
		if p.Balance < m.Stake {
			return DeclineInsufficientFunds, nil
		}
	}
	return "", nil
}

// startRematch escrows both stakes and replaces old with a Playing successor.
// The original creator stays creator.
func (s *MatchService) startRematch(ctx context.Context, tx repository.Tx, u *unit, old *domain.Match) (*domain.Match, error) {
	next := &domain.Match{
		ID:              s.newID(),
		CreatorID:       old.CreatorID,
		JoinerID:        old.JoinerID,
		Stake:           old.Stake,
		Status:          domain.StatusPlaying,
		CreatedAt:       u.now,
		StartedAt:       &u.now,
		PreviousMatchID: old.ID,
	}
	if err := s.escrow(ctx, tx, next.ID, next.Stake, next.CreatorID, next.JoinerID); err != nil {
		return nil, err
	}
	if err := tx.PutMatch(ctx, next); err != nil {
		return nil, err
	}
	for _, id := range next.Participants() {
		if err := s.ledger.SetCurrentMatch(ctx, tx, id, next.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.DeleteMatch(ctx, old.ID); err != nil {
		return nil, err
	}

	u.emit(domain.EventMatchStarted, next.ID, domain.MatchStarted{
		Stake:           next.Stake,
		CreatorID:       next.CreatorID,
		JoinerID:        next.JoinerID,
		Rematch:         true,
		PreviousMatchID: old.ID,
	})
	id := next.ID
	u.then(func() {
		s.armTimer(id, s.opts.MoveTimeout)
		metrics.MatchesStarted.WithLabelValues("rematch").Inc()
		metrics.Rematches.WithLabelValues("started").Inc()
	})
	return next, nil
}

// DeclineRematch ends the negotiation: both flags are cleared, the room is
// told and the finished match is dropped. Calls on anything other than a
// Finished match the caller took part in are no-ops.
func (s *MatchService) DeclineRematch(ctx context.Context, matchID, playerID string) error {
	unlock := s.locks.Lock(matchKey(matchID))
	defer unlock()

	err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		role := m.RoleOf(playerID)
		if m.Status != domain.StatusFinished || role == "" {
			return nil
		}
		m.ClearRematch()
		if err := tx.DeleteMatch(ctx, m.ID); err != nil {
			return err
		}
		u.emit(domain.EventRematchDeclined, m.ID, domain.RematchDeclined{Reason: DeclineByPlayer, Role: role})
		u.then(func() { metrics.Rematches.WithLabelValues(DeclineByPlayer).Inc() })
		return nil
	})
	if errors.Is(err, domain.ErrMatchNotFound) {
		return nil
	}
	return err
}
