package service

import (
	"context"
	"errors"
	"fmt"

	"rps_wager/internal/domain"
	"rps_wager/internal/metrics"
	"rps_wager/internal/repository"
)

// SweepReport counts what one sweep pass did.
type SweepReport struct {
	Cancelled int `json:"cancelled"`
	TimedOut  int `json:"timed_out"`
	Purged    int `json:"purged"`
}

// Sweep bounds the life of orphaned state: stale Waiting matches are
// cancelled, overdue Playing matches without a timer go through the timeout
// path, and Finished matches past retention are dropped.
func (s *MatchService) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := s.clock.Now()

	waiting, err := s.store.ListMatches(ctx, domain.StatusWaiting)
	if err != nil {
		return rep, fmt.Errorf("list waiting matches: %w", err)
	}
	for _, m := range waiting {
		if now.Sub(m.CreatedAt) <= s.opts.StaleWaiting {
			continue
		}
		done, err := s.cancelStale(ctx, m.ID)
		if err != nil {
			s.log.Warn("sweep: cancel stale match failed", "match_id", m.ID, "error", err)
			continue
		}
		if done {
			rep.Cancelled++
		}
	}

	playing, err := s.store.ListMatches(ctx, domain.StatusPlaying)
	if err != nil {
		return rep, fmt.Errorf("list playing matches: %w", err)
	}
	for _, m := range playing {
		if m.StartedAt == nil || now.Sub(*m.StartedAt) <= s.opts.MoveTimeout || s.timers.Armed(m.ID) {
			continue
		}
		if s.timeout(ctx, m.ID) {
			rep.TimedOut++
		}
	}

	finished, err := s.store.ListMatches(ctx, domain.StatusFinished)
	if err != nil {
		return rep, fmt.Errorf("list finished matches: %w", err)
	}
	for _, m := range finished {
		if m.FinishedAt == nil || now.Sub(*m.FinishedAt) <= s.opts.FinishedRetention {
			continue
		}
		done, err := s.purgeFinished(ctx, m.ID)
		if err != nil {
			s.log.Warn("sweep: purge finished match failed", "match_id", m.ID, "error", err)
			continue
		}
		if done {
			rep.Purged++
		}
	}

	metrics.SweepActions.WithLabelValues("cancelled").Add(float64(rep.Cancelled))
	metrics.SweepActions.WithLabelValues("timed_out").Add(float64(rep.TimedOut))
	metrics.SweepActions.WithLabelValues("purged").Add(float64(rep.Purged))
	if rep != (SweepReport{}) {
		s.log.Info("sweep done", "cancelled", rep.Cancelled, "timed_out", rep.TimedOut, "purged", rep.Purged)
	}
	return rep, nil
}

// cancelStale re-checks the match under its lock; it may have been joined
// since it was listed.
func (s *MatchService) cancelStale(ctx context.Context, matchID string) (bool, error) {
	unlock := s.locks.Lock(matchKey(matchID))
	defer unlock()

	var done bool
	err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		done = false
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusWaiting || u.now.Sub(m.CreatedAt) <= s.opts.StaleWaiting {
			return nil
		}
		done = true
		return s.cancelWaiting(ctx, tx, u, m, "stale")
	})
	if errors.Is(err, domain.ErrMatchNotFound) {
		return false, nil
	}
	return done, err
}

func (s *MatchService) purgeFinished(ctx context.Context, matchID string) (bool, error) {
	unlock := s.locks.Lock(matchKey(matchID))
	defer unlock()

	var done bool
	err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		done = false
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusFinished || m.FinishedAt == nil || u.now.Sub(*m.FinishedAt) <= s.opts.FinishedRetention {
			return nil
		}
		if m.CreatorRematch != domain.RematchNotRequested || m.JoinerRematch != domain.RematchNotRequested {
			u.emit(domain.EventRematchDeclined, m.ID, domain.RematchDeclined{Reason: DeclineExpired})
		}
		done = true
		return tx.DeleteMatch(ctx, m.ID)
	})
	if errors.Is(err, domain.ErrMatchNotFound) {
		return false, nil
	}
	return done, err
}
