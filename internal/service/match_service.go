package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rps_wager/internal/domain"
	"rps_wager/internal/events"
	"rps_wager/internal/game"
	"rps_wager/internal/logger"
	"rps_wager/internal/metrics"
	"rps_wager/internal/repository"
	"rps_wager/internal/scheduler"
)

// PayoutPolicy decides what a decisive result won by an auto-selected move pays.
type PayoutPolicy string

const (
	// PayoutFull pays 2×stake to the winner regardless of move origin.
	PayoutFull PayoutPolicy = "full"
	// PayoutRefund returns each stake to its owner when the winning move was auto.
	PayoutRefund PayoutPolicy = "refund"
)

// Options tunes the engine. Zero fields fall back to DefaultOptions.
type Options struct {
	InitialCoins      int64
	MinStake          int64
	MaxStake          int64
	MoveTimeout       time.Duration
	StaleWaiting      time.Duration
	FinishedRetention time.Duration
	AutoMovePayout    PayoutPolicy
	// MaxAttempts bounds retries of a unit of work after ErrConflict.
	MaxAttempts int
}

func DefaultOptions() Options {
	return Options{
		InitialCoins:      100,
		MinStake:          1,
		MaxStake:          100000,
		MoveTimeout:       10 * time.Second,
		StaleWaiting:      10 * time.Minute,
		FinishedRetention: time.Hour,
		AutoMovePayout:    PayoutFull,
		MaxAttempts:       3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InitialCoins <= 0 {
		o.InitialCoins = d.InitialCoins
	}
	if o.MinStake <= 0 {
		o.MinStake = d.MinStake
	}
	if o.MaxStake <= 0 {
		o.MaxStake = d.MaxStake
	}
	if o.MoveTimeout <= 0 {
		o.MoveTimeout = d.MoveTimeout
	}
	if o.StaleWaiting <= 0 {
		o.StaleWaiting = d.StaleWaiting
	}
	if o.FinishedRetention <= 0 {
		o.FinishedRetention = d.FinishedRetention
	}
	if o.AutoMovePayout != PayoutRefund {
		o.AutoMovePayout = PayoutFull
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	return o
}

// Timers is the per-match timeout scheduler.
type Timers interface {
	Arm(matchID string, d time.Duration, fn func()) *scheduler.Handle
	Cancel(matchID string) bool
	Armed(matchID string) bool
	Len() int
}

// Deps are the collaborators of MatchService. Store and Timers are required.
type Deps struct {
	Store     repository.Store
	Timers    Timers
	Publisher events.Publisher
	Clock     Clock
	Random    game.Random
	Logger    *slog.Logger
	// NewID allocates match ids; uuid.NewString when nil.
	NewID func() string
}

// MatchService is the match orchestration engine: lifecycle transitions,
// escrow and payout, settlement, timeouts, rematches and the idle sweep.
type MatchService struct {
	store  repository.Store
	ledger *Ledger
	timers Timers
	pub    events.Publisher
	clock  Clock
	rnd    game.Random
	locks  *keyedLocker
	opts   Options
	log    *slog.Logger
	newID  func() string
}

func NewMatchService(deps Deps, opts Options) *MatchService {
	opts = opts.withDefaults()
	if deps.Publisher == nil {
		deps.Publisher = events.Nop
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if deps.Random == nil {
		deps.Random = game.CryptoRandom{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Component("engine")
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &MatchService{
		store:  deps.Store,
		ledger: NewLedger(opts.InitialCoins, deps.Clock),
		timers: deps.Timers,
		pub:    deps.Publisher,
		clock:  deps.Clock,
		rnd:    deps.Random,
		locks:  newKeyedLocker(),
		opts:   opts,
		log:    deps.Logger,
		newID:  deps.NewID,
	}
}

func (s *MatchService) Options() Options { return s.opts }

// unit collects what a unit of work produced. Nothing in it is visible to
// the outside until the store commits.
type unit struct {
	now    time.Time
	events []domain.Event
	after  []func()
	// fail is returned to the caller after a successful commit.
	fail error
}

func (u *unit) emit(t domain.EventType, matchID string, payload any) {
	u.events = append(u.events, domain.Event{Type: t, MatchID: matchID, At: u.now, Payload: payload})
}

func (u *unit) then(fn func()) {
	u.after = append(u.after, fn)
}

type unitFunc func(ctx context.Context, tx repository.Tx, u *unit) error

// exec runs fn as one unit of work, retrying from a fresh read when the store
// reports a concurrent modification. Events and timer changes are applied
// only after commit.
func (s *MatchService) exec(ctx context.Context, fn unitFunc) error {
	var err error
	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		u := &unit{now: s.clock.Now().UTC()}
		err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return fn(ctx, tx, u)
		})
		if errors.Is(err, repository.ErrConflict) {
			metrics.TxConflicts.Inc()
			continue
		}
		if err != nil {
			return err
		}
		s.finish(ctx, u)
		return u.fail
	}
	return err
}

func (s *MatchService) finish(ctx context.Context, u *unit) {
	for _, fn := range u.after {
		fn()
	}
	ctx = context.WithoutCancel(ctx)
	for _, ev := range u.events {
		if err := s.pub.Publish(ctx, ev); err != nil {
			s.log.Warn("publish failed", "type", ev.Type, "match_id", ev.MatchID, "error", err)
		}
	}
}

func (s *MatchService) validateStake(stake int64) error {
	if stake <= 0 || stake < s.opts.MinStake || stake > s.opts.MaxStake {
		return domain.ErrInvalidStake
	}
	return nil
}

// busy reports whether p is held by an active match. A stale pointer to a
// match that is gone or no longer lists the player is cleared in place.
func (s *MatchService) busy(ctx context.Context, tx repository.Tx, p *domain.Player) (bool, error) {
	if p.CurrentMatch == "" {
		return false, nil
	}
	m, err := tx.GetMatch(ctx, p.CurrentMatch)
	if err != nil && !errors.Is(err, domain.ErrMatchNotFound) {
		return false, err
	}
	if err == nil && m.Active() && m.Lists(p.ID) {
		return true, nil
	}
	p.CurrentMatch = ""
	return false, tx.PutPlayer(ctx, p)
}

// CreateMatch opens a Waiting match. The balance is only checked here; the
// stake is escrowed when someone joins.
func (s *MatchService) CreateMatch(ctx context.Context, creatorID string, stake int64) (*domain.Match, error) {
	if creatorID == "" {
		return nil, domain.ErrNotParticipant
	}
	if err := s.validateStake(stake); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(playerKey(creatorID))
	defer unlock()

	var created *domain.Match
	err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		p, err := s.ledger.Ensure(ctx, tx, creatorID)
		if err != nil {
			return err
		}
		busy, err := s.busy(ctx, tx, p)
		if err != nil {
			return err
		}
		if busy {
			return domain.ErrAlreadyInMatch
		}
		if p.Balance < stake {
			return domain.ErrInsufficientFunds
		}

		m := &domain.Match{
			ID:        s.newID(),
			CreatorID: creatorID,
			Stake:     stake,
			Status:    domain.StatusWaiting,
			CreatedAt: u.now,
		}
		if err := tx.PutMatch(ctx, m); err != nil {
			return err
		}
		if err := s.ledger.SetCurrentMatch(ctx, tx, creatorID, m.ID); err != nil {
			return err
		}
		created = m
		u.then(metrics.MatchesCreated.Inc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Match(s.log, created.ID).Info("match created", "creator_id", creatorID, "stake", stake)
	return created, nil
}

// JoinMatch escrows both stakes and starts play.
func (s *MatchService) JoinMatch(ctx context.Context, matchID, joinerID string) (*domain.Match, error) {
	if joinerID == "" {
		return nil, domain.ErrNotParticipant
	}

	unlock := s.locks.Lock(matchKey(matchID), playerKey(joinerID))
	defer unlock()

	var started *domain.Match
	err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusWaiting || m.JoinerID != "" || m.CreatorID == joinerID {
			return domain.ErrMatchNotJoinable
		}

		creator, err := tx.GetPlayer(ctx, m.CreatorID)
		if errors.Is(err, domain.ErrPlayerNotFound) {
			logger.Match(s.log, m.ID).Error("dropping waiting match with unknown creator", "creator_id", m.CreatorID)
			u.fail = domain.ErrMatchNotFound
			return tx.DeleteMatch(ctx, m.ID)
		}
		if err != nil {
			return err
		}

		joiner, err := s.ledger.Ensure(ctx, tx, joinerID)
		if err != nil {
			return err
		}
		busy, err := s.busy(ctx, tx, joiner)
		if err != nil {
			return err
		}
		if busy {
			return domain.ErrAlreadyInMatch
		}

		if creator.Balance < m.Stake || joiner.Balance < m.Stake {
			return domain.ErrInsufficientFunds
		}
		if err := s.escrow(ctx, tx, m.ID, m.Stake, m.CreatorID, joinerID); err != nil {
			return err
		}

		m.JoinerID = joinerID
		m.Status = domain.StatusPlaying
		m.StartedAt = &u.now
		if err := tx.PutMatch(ctx, m); err != nil {
			return err
		}
		for _, id := range m.Participants() {
			if err := s.ledger.SetCurrentMatch(ctx, tx, id, m.ID); err != nil {
				return err
			}
		}

		u.emit(domain.EventMatchStarted, m.ID, domain.MatchStarted{
			Stake:     m.Stake,
			CreatorID: m.CreatorID,
			JoinerID:  m.JoinerID,
		})
		id := m.ID
		u.then(func() {
			s.armTimer(id, s.opts.MoveTimeout)
			metrics.MatchesStarted.WithLabelValues("join").Inc()
		})
		started = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Match(s.log, matchID).Info("match started", "joiner_id", joinerID, "stake", started.Stake)
	return started, nil
}

// escrow debits stake from every player or from none.
func (s *MatchService) escrow(ctx context.Context, tx repository.Tx, matchID string, stake int64, playerIDs ...string) error {
	for _, id := range playerIDs {
		ok, err := s.ledger.TryDebit(ctx, tx, id, matchID, stake)
		if err != nil {
			return err
		}
		if !ok {
			// returning aborts the unit, undoing any debit already staged
			return domain.ErrInsufficientFunds
		}
	}
	return nil
}

// CancelMatch removes a Waiting match on its creator's request.
func (s *MatchService) CancelMatch(ctx context.Context, matchID, requesterID string) error {
	unlock := s.locks.Lock(matchKey(matchID))
	defer unlock()

	return s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.CreatorID != requesterID {
			return domain.ErrNotParticipant
		}
		if m.Status != domain.StatusWaiting {
			return domain.ErrMatchNotCancellable
		}
		return s.cancelWaiting(ctx, tx, u, m, "cancelled")
	})
}

func (s *MatchService) cancelWaiting(ctx context.Context, tx repository.Tx, u *unit, m *domain.Match, reason string) error {
	err := s.ledger.ClearCurrentMatch(ctx, tx, m.CreatorID, m.ID)
	if err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
		return err
	}
	if err := tx.DeleteMatch(ctx, m.ID); err != nil {
		return err
	}
	u.emit(domain.EventMatchCancelled, m.ID, domain.MatchCancelled{Reason: reason})
	u.then(func() { metrics.MatchesCancelled.WithLabelValues(reason).Inc() })
	return nil
}

// SubmitMove records a player's move and settles once both are in.
func (s *MatchService) SubmitMove(ctx context.Context, matchID, playerID string, move domain.Move) error {
	unlock := s.locks.Lock(matchKey(matchID))
	defer unlock()

	err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusPlaying {
			return domain.ErrMatchNotInPlay
		}
		role := m.RoleOf(playerID)
		if role == "" {
			return domain.ErrNotParticipant
		}
		if !move.Valid() {
			return domain.ErrInvalidMove
		}
		if m.MoveOf(role) != domain.MoveNone {
			return domain.ErrAlreadyMoved
		}

		m.SetMove(role, move, false)
		if err := tx.PutMatch(ctx, m); err != nil {
			return err
		}
		u.emit(domain.EventMoveMade, m.ID, domain.MoveMade{Role: role})

		if !m.BothMoved() {
			return nil
		}
		err = s.settle(ctx, tx, u, m, domain.ReasonMoves)
		if errors.Is(err, domain.ErrAlreadySettled) {
			// the status read above is stale; start over
			return repository.ErrConflict
		}
		return err
	})
	if errors.Is(err, domain.ErrPlayerNotFound) {
		s.dropCorrupt(ctx, matchID)
		return domain.ErrMatchNotFound
	}
	return err
}

// settle applies the outcome of m exactly once. It must run inside the unit
// that filled the last move slot; the Playing→Finished swap is the guard.
func (s *MatchService) settle(ctx context.Context, tx repository.Tx, u *unit, m *domain.Match, reason string) error {
	swapped, err := tx.CompareAndSwapStatus(ctx, m.ID, domain.StatusPlaying, domain.StatusFinished)
	if err != nil {
		return err
	}
	if !swapped {
		metrics.SettleRaceLost.Inc()
		return domain.ErrAlreadySettled
	}

	result := game.Result(m.CreatorMove, m.JoinerMove)
	m.Status = domain.StatusFinished
	m.Result = result
	m.FinishedAt = &u.now
	m.ClearRematch()

	creatorCredit, joinerCredit, kind := s.payout(m)
	if err := s.credit(ctx, tx, m.ID, m.CreatorID, creatorCredit, kind); err != nil {
		return err
	}
	if err := s.credit(ctx, tx, m.ID, m.JoinerID, joinerCredit, kind); err != nil {
		return err
	}
	if err := s.recordStats(ctx, tx, m); err != nil {
		return err
	}
	return s.finalize(ctx, tx, u, m, reason)
}

// payout returns what each side is credited. Credits always sum to 2×stake.
func (s *MatchService) payout(m *domain.Match) (creator, joiner int64, kind domain.LedgerKind) {
	stake := m.Stake
	switch m.Result {
	case domain.ResultCreatorWins:
		if s.opts.AutoMovePayout == PayoutRefund && m.CreatorAuto {
			return stake, stake, domain.LedgerRefund
		}
		return 2 * stake, 0, domain.LedgerPayout
	case domain.ResultJoinerWins:
		if s.opts.AutoMovePayout == PayoutRefund && m.JoinerAuto {
			return stake, stake, domain.LedgerRefund
		}
		return 0, 2 * stake, domain.LedgerPayout
	}
	return stake, stake, domain.LedgerRefund
}

func (s *MatchService) credit(ctx context.Context, tx repository.Tx, matchID, playerID string, amount int64, kind domain.LedgerKind) error {
	if amount == 0 {
		return nil
	}
	_, err := s.ledger.Credit(ctx, tx, playerID, matchID, amount, kind)
	return err
}

func (s *MatchService) recordStats(ctx context.Context, tx repository.Tx, m *domain.Match) error {
	creator, joiner := domain.OutcomeDraw, domain.OutcomeDraw
	switch m.Result {
	case domain.ResultCreatorWins:
		creator, joiner = domain.OutcomeWin, domain.OutcomeLoss
	case domain.ResultJoinerWins:
		creator, joiner = domain.OutcomeLoss, domain.OutcomeWin
	}
	if err := s.ledger.RecordOutcome(ctx, tx, m.CreatorID, creator, m.Stake); err != nil {
		return err
	}
	return s.ledger.RecordOutcome(ctx, tx, m.JoinerID, joiner, m.Stake)
}

// finalize persists a settled match, frees both players and reports the result.
func (s *MatchService) finalize(ctx context.Context, tx repository.Tx, u *unit, m *domain.Match, reason string) error {
	for _, id := range m.Participants() {
		if err := s.ledger.ClearCurrentMatch(ctx, tx, id, m.ID); err != nil {
			return err
		}
	}
	if err := tx.PutMatch(ctx, m); err != nil {
		return err
	}

	creatorBalance, err := s.ledger.GetBalance(ctx, tx, m.CreatorID)
	if err != nil {
		return err
	}
	joinerBalance, err := s.ledger.GetBalance(ctx, tx, m.JoinerID)
	if err != nil {
		return err
	}

	u.emit(domain.EventMatchResult, m.ID, domain.MatchResult{
		CreatorMove:    m.CreatorMove,
		JoinerMove:     m.JoinerMove,
		CreatorAuto:    m.CreatorAuto,
		JoinerAuto:     m.JoinerAuto,
		Result:         m.Result,
		Reason:         reason,
		Stake:          m.Stake,
		CreatorBalance: creatorBalance,
		JoinerBalance:  joinerBalance,
		CanRematch:     creatorBalance >= m.Stake && joinerBalance >= m.Stake,
	})

	id, result := m.ID, m.Result
	u.then(func() {
		s.timers.Cancel(id)
		metrics.ArmedTimers.Set(float64(s.timers.Len()))
		metrics.MatchesSettled.WithLabelValues(string(result), reason).Inc()
	})
	logger.Match(s.log, m.ID).Info("match settled",
		"result", m.Result, "reason", reason,
		"creator_balance", creatorBalance, "joiner_balance", joinerBalance)
	return nil
}

func (s *MatchService) armTimer(matchID string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.timers.Arm(matchID, d, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.HandleTimeout(ctx, matchID)
	})
	metrics.ArmedTimers.Set(float64(s.timers.Len()))
}

// HandleTimeout is the timer path: it fills missing moves at random and
// settles. It never returns an error; a match it cannot settle is refunded
// as a draw, and a corrupt match is dropped.
func (s *MatchService) HandleTimeout(ctx context.Context, matchID string) {
	s.timeout(ctx, matchID)
}

// timeout reports whether this call moved the match out of Playing.
func (s *MatchService) timeout(ctx context.Context, matchID string) bool {
	log := logger.Match(s.log, matchID)

	unlock := s.locks.Lock(matchKey(matchID))
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
			return s.forceSettle(ctx, tx, u, matchID)
		})
		switch {
		case err == nil:
			return true
		case errors.Is(err, domain.ErrAlreadySettled),
			errors.Is(err, domain.ErrMatchNotInPlay),
			errors.Is(err, domain.ErrMatchNotFound):
			return false
		case errors.Is(err, domain.ErrPlayerNotFound):
			return s.dropCorrupt(ctx, matchID)
		}
		lastErr = err
		log.Warn("timeout settlement failed", "attempt", attempt, "error", err)
	}

	log.Error("timeout settlement gave up, refunding stakes", "error", lastErr)
	err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		return s.refundAsDraw(ctx, tx, u, matchID)
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrAlreadySettled):
		return false
	}
	// still Playing with no timer: the sweep picks it up again
	log.Error("fail-safe refund failed", "error", err)
	return false
}

func (s *MatchService) forceSettle(ctx context.Context, tx repository.Tx, u *unit, matchID string) error {
	m, err := tx.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Status != domain.StatusPlaying {
		return domain.ErrMatchNotInPlay
	}

	for _, role := range []domain.Role{domain.RoleCreator, domain.RoleJoiner} {
		if m.MoveOf(role) != domain.MoveNone {
			continue
		}
		m.SetMove(role, game.RandomMove(s.rnd), true)
		u.emit(domain.EventMoveMade, m.ID, domain.MoveMade{Role: role, Auto: true})
		u.then(metrics.AutoMoves.Inc)
	}
	if err := tx.PutMatch(ctx, m); err != nil {
		return err
	}
	return s.settle(ctx, tx, u, m, domain.ReasonTimeout)
}

// refundAsDraw force-finishes a Playing match returning each stake.
func (s *MatchService) refundAsDraw(ctx context.Context, tx repository.Tx, u *unit, matchID string) error {
	m, err := tx.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	swapped, err := tx.CompareAndSwapStatus(ctx, m.ID, domain.StatusPlaying, domain.StatusFinished)
	if err != nil {
		return err
	}
	if !swapped {
		return domain.ErrAlreadySettled
	}
	m.Status = domain.StatusFinished
	m.Result = domain.ResultDraw
	m.FinishedAt = &u.now
	m.ClearRematch()
	for _, id := range m.Participants() {
		if err := s.credit(ctx, tx, m.ID, id, m.Stake, domain.LedgerRefund); err != nil {
			return err
		}
	}
	// a refunded match counts as a draw for both sides
	if err := s.recordStats(ctx, tx, m); err != nil {
		return err
	}
	return s.finalize(ctx, tx, u, m, domain.ReasonRefund)
}

// dropCorrupt deletes a match that references a player who no longer
// resolves, freeing whichever participant still exists. Escrowed coins of
// the missing side are not recovered. It reports whether the match was deleted.
func (s *MatchService) dropCorrupt(ctx context.Context, matchID string) bool {
	log := logger.Match(s.log, matchID)
	err := s.exec(ctx, func(ctx context.Context, tx repository.Tx, u *unit) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		for _, id := range m.Participants() {
			err := s.ledger.ClearCurrentMatch(ctx, tx, id, m.ID)
			if err != nil && !errors.Is(err, domain.ErrPlayerNotFound) {
				return err
			}
		}
		u.then(func() { s.timers.Cancel(matchID) })
		return tx.DeleteMatch(ctx, m.ID)
	})
	if errors.Is(err, domain.ErrMatchNotFound) {
		return false
	}
	if err != nil {
		log.Error("failed to drop corrupt match", "error", err)
		return false
	}
	log.Error("dropped corrupt match", "error", domain.ErrCorruptMatch)
	return true
}

// RearmTimers arms a timer, with the time still left, for every Playing
// match that has none. Used on startup.
func (s *MatchService) RearmTimers(ctx context.Context) (int, error) {
	playing, err := s.store.ListMatches(ctx, domain.StatusPlaying)
	if err != nil {
		return 0, fmt.Errorf("list playing matches: %w", err)
	}
	now := s.clock.Now()
	n := 0
	for _, m := range playing {
		if s.timers.Armed(m.ID) {
			continue
		}
		left := s.opts.MoveTimeout
		if m.StartedAt != nil {
			left -= now.Sub(*m.StartedAt)
		}
		s.armTimer(m.ID, left)
		n++
	}
	return n, nil
}
