package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rps_wager/internal/domain"
	"rps_wager/internal/events"
	"rps_wager/internal/logger"
	"rps_wager/internal/repository"
)

type MatchServiceSuite struct {
	suite.Suite
	ctx    context.Context
	store  *repository.MemoryStore
	timers *fakeTimers
	clock  *mockClock
	rnd    *seqRandom
	rec    *events.Recorder
	svc    *MatchService
}

func TestMatchServiceSuite(t *testing.T) {
	suite.Run(t, new(MatchServiceSuite))
}

func (s *MatchServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = repository.NewMemoryStore()
	s.timers = newFakeTimers()
	s.clock = newMockClock(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))
	s.rnd = &seqRandom{}
	s.rec = events.NewRecorder()
	s.svc = s.newService(s.store, DefaultOptions())
}

func (s *MatchServiceSuite) newService(store repository.Store, opts Options) *MatchService {
	return NewMatchService(Deps{
		Store:     store,
		Timers:    s.timers,
		Publisher: s.rec,
		Clock:     s.clock,
		Random:    s.rnd,
		Logger:    logger.Discard(),
		NewID:     seqIDs("m"),
	}, opts)
}

func (s *MatchServiceSuite) player(id string) *domain.Player {
	p, err := s.store.GetPlayer(s.ctx, id)
	s.Require().NoError(err)
	return p
}

func (s *MatchServiceSuite) match(id string) *domain.Match {
	m, err := s.store.GetMatch(s.ctx, id)
	s.Require().NoError(err)
	return m
}

func (s *MatchServiceSuite) setBalance(id string, balance int64) {
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx repository.Tx) error {
		p, err := tx.GetPlayer(ctx, id)
		if err != nil {
			return err
		}
		p.Balance = balance
		return tx.PutPlayer(ctx, p)
	})
	s.Require().NoError(err)
}

// startMatch runs create+join for alice (creator) and bob (joiner).
func (s *MatchServiceSuite) startMatch(stake int64) *domain.Match {
	m, err := s.svc.CreateMatch(s.ctx, "alice", stake)
	s.Require().NoError(err)
	started, err := s.svc.JoinMatch(s.ctx, m.ID, "bob")
	s.Require().NoError(err)
	return started
}

func (s *MatchServiceSuite) results(matchID string) []domain.MatchResult {
	var out []domain.MatchResult
	for _, ev := range s.rec.OfType(domain.EventMatchResult, matchID) {
		out = append(out, ev.Payload.(domain.MatchResult))
	}
	return out
}

func (s *MatchServiceSuite) TestScenarioA_CreatorWins() {
	m, err := s.svc.CreateMatch(s.ctx, "alice", 10)
	s.Require().NoError(err)
	s.Equal(domain.StatusWaiting, m.Status)
	s.Equal(int64(100), s.player("alice").Balance, "no debit at creation")
	s.Equal(m.ID, s.player("alice").CurrentMatch)

	_, err = s.svc.JoinMatch(s.ctx, m.ID, "bob")
	s.Require().NoError(err)
	s.Equal(int64(90), s.player("alice").Balance)
	s.Equal(int64(90), s.player("bob").Balance)
	s.Equal(domain.StatusPlaying, s.match(m.ID).Status)
	s.True(s.timers.Armed(m.ID))
	s.Equal(10*time.Second, s.timers.delay(m.ID))

	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveScissors))

	alice, bob := s.player("alice"), s.player("bob")
	s.Equal(int64(110), alice.Balance)
	s.Equal(int64(90), bob.Balance)
	s.Equal(int64(1), alice.Wins)
	s.Equal(int64(10), alice.TotalCoinsWon)
	s.Equal(int64(1), bob.Losses)
	s.Equal(int64(10), bob.TotalCoinsLost)
	s.Empty(alice.CurrentMatch)
	s.Empty(bob.CurrentMatch)

	fin := s.match(m.ID)
	s.Equal(domain.StatusFinished, fin.Status)
	s.Equal(domain.ResultCreatorWins, fin.Result)
	s.NotNil(fin.FinishedAt)
	s.False(s.timers.Armed(m.ID))

	res := s.results(m.ID)
	s.Require().Len(res, 1)
	s.Equal(domain.MatchResult{
		CreatorMove:    domain.MoveRock,
		JoinerMove:     domain.MoveScissors,
		Result:         domain.ResultCreatorWins,
		Reason:         domain.ReasonMoves,
		Stake:          10,
		CreatorBalance: 110,
		JoinerBalance:  90,
		CanRematch:     true,
	}, res[0])
}

func (s *MatchServiceSuite) TestScenarioB_Draw() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveRock))

	alice, bob := s.player("alice"), s.player("bob")
	s.Equal(int64(100), alice.Balance)
	s.Equal(int64(100), bob.Balance)
	s.Equal(int64(1), alice.Draws)
	s.Equal(int64(1), bob.Draws)
	s.Equal(domain.ResultDraw, s.match(m.ID).Result)
}

func (s *MatchServiceSuite) TestScenarioC_TimeoutAutoMove() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))

	s.rnd.queue(1) // paper for bob
	s.Require().NoError(s.timers.fire(m.ID))

	fin := s.match(m.ID)
	s.Equal(domain.StatusFinished, fin.Status)
	s.Equal(domain.MovePaper, fin.JoinerMove)
	s.True(fin.JoinerAuto)
	s.False(fin.CreatorAuto)
	s.Equal(domain.ResultJoinerWins, fin.Result)
	s.Equal(int64(110), s.player("bob").Balance)
	s.Equal(0, s.timers.Len())

	auto := s.rec.OfType(domain.EventMoveMade, m.ID)
	s.Require().Len(auto, 2)
	s.Equal(domain.MoveMade{Role: domain.RoleJoiner, Auto: true}, auto[1].Payload)

	res := s.results(m.ID)
	s.Require().Len(res, 1)
	s.Equal(domain.ReasonTimeout, res[0].Reason)

	// a second, stale fire is harmless
	s.svc.HandleTimeout(s.ctx, m.ID)
	s.Len(s.results(m.ID), 1)
	s.Equal(int64(110), s.player("bob").Balance)
}

func (s *MatchServiceSuite) TestTimeoutWithNoMovesFillsBoth() {
	m := s.startMatch(10)
	s.rnd.queue(0, 0) // rock, rock
	s.Require().NoError(s.timers.fire(m.ID))

	fin := s.match(m.ID)
	s.True(fin.CreatorAuto)
	s.True(fin.JoinerAuto)
	s.Equal(domain.ResultDraw, fin.Result)
	s.Equal(int64(100), s.player("alice").Balance)
	s.Equal(int64(100), s.player("bob").Balance)
}

func (s *MatchServiceSuite) TestScenarioD_Rematch() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveScissors))

	next, err := s.svc.RequestRematch(s.ctx, m.ID, "alice")
	s.Require().NoError(err)
	s.Nil(next, "a single request never spawns a match")
	s.Equal(domain.RematchRequested, s.match(m.ID).CreatorRematch)

	next, err = s.svc.RequestRematch(s.ctx, m.ID, "bob")
	s.Require().NoError(err)
	s.Require().NotNil(next)

	s.Equal(domain.StatusPlaying, next.Status)
	s.Equal("alice", next.CreatorID)
	s.Equal("bob", next.JoinerID)
	s.Equal(m.ID, next.PreviousMatchID)
	s.Equal(int64(100), s.player("alice").Balance)
	s.Equal(int64(80), s.player("bob").Balance)
	s.Equal(next.ID, s.player("alice").CurrentMatch)
	s.True(s.timers.Armed(next.ID))

	_, err = s.store.GetMatch(s.ctx, m.ID)
	s.ErrorIs(err, domain.ErrMatchNotFound, "the old match is dropped")

	accepted := s.rec.OfType(domain.EventRematchAcceptedByPlayer, m.ID)
	s.Require().Len(accepted, 2)
	s.Equal(domain.RematchAcceptedByPlayer{Role: domain.RoleCreator}, accepted[0].Payload)

	started := s.rec.OfType(domain.EventMatchStarted, next.ID)
	s.Require().Len(started, 1)
	s.Equal(domain.MatchStarted{Stake: 10, CreatorID: "alice", JoinerID: "bob", Rematch: true, PreviousMatchID: m.ID}, started[0].Payload)
}

func (s *MatchServiceSuite) TestRepeatedRematchRequestIsIgnored() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveRock))

	for i := 0; i < 3; i++ {
		next, err := s.svc.RequestRematch(s.ctx, m.ID, "alice")
		s.Require().NoError(err)
		s.Nil(next)
	}
	s.Len(s.rec.OfType(domain.EventRematchAcceptedByPlayer, m.ID), 1)
}

func (s *MatchServiceSuite) TestRematchInsufficientFunds() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveScissors))
	s.setBalance("bob", 5)

	_, err := s.svc.RequestRematch(s.ctx, m.ID, "alice")
	s.Require().NoError(err)
	_, err = s.svc.RequestRematch(s.ctx, m.ID, "bob")
	s.ErrorIs(err, domain.ErrInsufficientFunds)

	old := s.match(m.ID)
	s.Equal(domain.RematchNotRequested, old.CreatorRematch)
	s.Equal(domain.RematchNotRequested, old.JoinerRematch)
	s.Equal(int64(110), s.player("alice").Balance, "nothing debited")
	s.Equal(int64(5), s.player("bob").Balance)

	declined := s.rec.OfType(domain.EventRematchDeclined, m.ID)
	s.Require().Len(declined, 1)
	s.Equal(DeclineInsufficientFunds, declined[0].Payload.(domain.RematchDeclined).Reason)
}

func (s *MatchServiceSuite) TestRematchRequiresFinishedParticipant() {
	m := s.startMatch(10)
	_, err := s.svc.RequestRematch(s.ctx, m.ID, "alice")
	s.ErrorIs(err, domain.ErrMatchNotFinished)

	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveRock))
	_, err = s.svc.RequestRematch(s.ctx, m.ID, "carol")
	s.ErrorIs(err, domain.ErrNotParticipant)
	_, err = s.svc.RequestRematch(s.ctx, "missing", "alice")
	s.ErrorIs(err, domain.ErrMatchNotFound)
}

func (s *MatchServiceSuite) TestDeclineRematch() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MovePaper))
	_, err := s.svc.RequestRematch(s.ctx, m.ID, "alice")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeclineRematch(s.ctx, m.ID, "carol"), "outsiders are ignored")
	s.Empty(s.rec.OfType(domain.EventRematchDeclined, m.ID))

	s.Require().NoError(s.svc.DeclineRematch(s.ctx, m.ID, "bob"))
	declined := s.rec.OfType(domain.EventRematchDeclined, m.ID)
	s.Require().Len(declined, 1)
	s.Equal(domain.RematchDeclined{Reason: DeclineByPlayer, Role: domain.RoleJoiner}, declined[0].Payload)

	_, err = s.store.GetMatch(s.ctx, m.ID)
	s.ErrorIs(err, domain.ErrMatchNotFound)

	// declining again, or a later request, finds nothing
	s.Require().NoError(s.svc.DeclineRematch(s.ctx, m.ID, "bob"))
	_, err = s.svc.RequestRematch(s.ctx, m.ID, "alice")
	s.ErrorIs(err, domain.ErrMatchNotFound)
}

func (s *MatchServiceSuite) TestRematchDeclinedWhenPlayerBusy() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveRock))

	_, err := s.svc.RequestRematch(s.ctx, m.ID, "alice")
	s.Require().NoError(err)
	_, err = s.svc.CreateMatch(s.ctx, "bob", 5)
	s.Require().NoError(err)

	_, err = s.svc.RequestRematch(s.ctx, m.ID, "bob")
	s.ErrorIs(err, domain.ErrAlreadyInMatch)
	declined := s.rec.OfType(domain.EventRematchDeclined, m.ID)
	s.Require().Len(declined, 1)
	s.Equal(DeclinePlayerBusy, declined[0].Payload.(domain.RematchDeclined).Reason)
}

func (s *MatchServiceSuite) TestCreateValidation() {
	_, err := s.svc.CreateMatch(s.ctx, "alice", 0)
	s.ErrorIs(err, domain.ErrInvalidStake)
	_, err = s.svc.CreateMatch(s.ctx, "alice", -3)
	s.ErrorIs(err, domain.ErrInvalidStake)
	_, err = s.svc.CreateMatch(s.ctx, "alice", 100001)
	s.ErrorIs(err, domain.ErrInvalidStake)

	_, err = s.svc.CreateMatch(s.ctx, "alice", 101)
	s.ErrorIs(err, domain.ErrInsufficientFunds)

	_, err = s.svc.CreateMatch(s.ctx, "alice", 100)
	s.Require().NoError(err)
	_, err = s.svc.CreateMatch(s.ctx, "alice", 10)
	s.ErrorIs(err, domain.ErrAlreadyInMatch)
}

func (s *MatchServiceSuite) TestStakeLimits() {
	svc := s.newService(s.store, Options{MinStake: 5, MaxStake: 50})
	_, err := svc.CreateMatch(s.ctx, "alice", 4)
	s.ErrorIs(err, domain.ErrInvalidStake)
	_, err = svc.CreateMatch(s.ctx, "alice", 51)
	s.ErrorIs(err, domain.ErrInvalidStake)
	_, err = svc.CreateMatch(s.ctx, "alice", 50)
	s.NoError(err)
}

func (s *MatchServiceSuite) TestJoinValidation() {
	_, err := s.svc.JoinMatch(s.ctx, "missing", "bob")
	s.ErrorIs(err, domain.ErrMatchNotFound)

	m, err := s.svc.CreateMatch(s.ctx, "alice", 10)
	s.Require().NoError(err)
	_, err = s.svc.JoinMatch(s.ctx, m.ID, "alice")
	s.ErrorIs(err, domain.ErrMatchNotJoinable)

	_, err = s.svc.JoinMatch(s.ctx, m.ID, "bob")
	s.Require().NoError(err)
	_, err = s.svc.JoinMatch(s.ctx, m.ID, "carol")
	s.ErrorIs(err, domain.ErrMatchNotJoinable)
	s.Equal("bob", s.match(m.ID).JoinerID, "joiner is set at most once")
}

func (s *MatchServiceSuite) TestJoinRecheckBalances() {
	_, err := s.svc.GetPlayer(s.ctx, "bob")
	s.Require().NoError(err)
	m, err := s.svc.CreateMatch(s.ctx, "alice", 50)
	s.Require().NoError(err)
	s.setBalance("alice", 20)

	_, err = s.svc.JoinMatch(s.ctx, m.ID, "bob")
	s.ErrorIs(err, domain.ErrInsufficientFunds)
	s.Equal(int64(20), s.player("alice").Balance)
	s.Equal(int64(100), s.player("bob").Balance, "neither debit applied")
	s.Empty(s.player("bob").CurrentMatch)
	s.Equal(domain.StatusWaiting, s.match(m.ID).Status)
	s.False(s.timers.Armed(m.ID))
}

func (s *MatchServiceSuite) TestJoinerAlreadyInMatch() {
	m, err := s.svc.CreateMatch(s.ctx, "alice", 10)
	s.Require().NoError(err)
	_, err = s.svc.CreateMatch(s.ctx, "bob", 10)
	s.Require().NoError(err)

	_, err = s.svc.JoinMatch(s.ctx, m.ID, "bob")
	s.ErrorIs(err, domain.ErrAlreadyInMatch)
}

func (s *MatchServiceSuite) TestCancelMatch() {
	m, err := s.svc.CreateMatch(s.ctx, "alice", 10)
	s.Require().NoError(err)

	s.ErrorIs(s.svc.CancelMatch(s.ctx, m.ID, "bob"), domain.ErrNotParticipant)
	s.Require().NoError(s.svc.CancelMatch(s.ctx, m.ID, "alice"))

	_, err = s.store.GetMatch(s.ctx, m.ID)
	s.ErrorIs(err, domain.ErrMatchNotFound)
	s.Empty(s.player("alice").CurrentMatch)
	s.Equal(int64(100), s.player("alice").Balance)

	cancelled := s.rec.OfType(domain.EventMatchCancelled, m.ID)
	s.Require().Len(cancelled, 1)
	s.Equal(domain.MatchCancelled{Reason: "cancelled"}, cancelled[0].Payload)

	s.ErrorIs(s.svc.CancelMatch(s.ctx, m.ID, "alice"), domain.ErrMatchNotFound)
}

func (s *MatchServiceSuite) TestCancelPlayingMatchRejected() {
	m := s.startMatch(10)
	s.ErrorIs(s.svc.CancelMatch(s.ctx, m.ID, "alice"), domain.ErrMatchNotCancellable)
	s.Equal(domain.StatusPlaying, s.match(m.ID).Status)
}

func (s *MatchServiceSuite) TestSubmitMoveValidation() {
	m, err := s.svc.CreateMatch(s.ctx, "alice", 10)
	s.Require().NoError(err)
	s.ErrorIs(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock), domain.ErrMatchNotInPlay)

	_, err = s.svc.JoinMatch(s.ctx, m.ID, "bob")
	s.Require().NoError(err)
	s.ErrorIs(s.svc.SubmitMove(s.ctx, m.ID, "carol", domain.MoveRock), domain.ErrNotParticipant)
	s.ErrorIs(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.Move("lizard")), domain.ErrInvalidMove)
	s.ErrorIs(s.svc.SubmitMove(s.ctx, "missing", "alice", domain.MoveRock), domain.ErrMatchNotFound)
}

func (s *MatchServiceSuite) TestSecondMoveIsRejectedAndUnchanged() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.ErrorIs(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MovePaper), domain.ErrAlreadyMoved)
	s.Equal(domain.MoveRock, s.match(m.ID).CreatorMove)
	s.Len(s.rec.OfType(domain.EventMoveMade, m.ID), 1)
}

func (s *MatchServiceSuite) TestMoveAfterSettlement() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveRock))
	s.ErrorIs(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MovePaper), domain.ErrMatchNotInPlay)
}

func (s *MatchServiceSuite) TestExactlyOnceUnderRace() {
	for i := 0; i < 50; i++ {
		s.SetupTest()
		m := s.startMatch(10)
		s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveScissors)
		}()
		go func() {
			defer wg.Done()
			_ = s.timers.fire(m.ID)
		}()
		wg.Wait()

		s.Require().Len(s.results(m.ID), 1)
		total := s.player("alice").Balance + s.player("bob").Balance
		s.Require().Equal(int64(200), total, "coins are conserved")
		s.Require().Equal(domain.StatusFinished, s.match(m.ID).Status)
		s.Require().Equal(0, s.timers.Len())
	}
}

func (s *MatchServiceSuite) TestParallelMatchesConserveCoins() {
	players := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	var wg sync.WaitGroup
	for i := 0; i < len(players); i += 2 {
		creator, joiner := players[i], players[i+1]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				m, err := s.svc.CreateMatch(s.ctx, creator, 10)
				if err != nil {
					return
				}
				if _, err := s.svc.JoinMatch(s.ctx, m.ID, joiner); err != nil {
					return
				}
				_ = s.svc.SubmitMove(s.ctx, m.ID, creator, domain.MovePaper)
				_ = s.svc.SubmitMove(s.ctx, m.ID, joiner, domain.MoveRock)
			}
		}()
	}
	wg.Wait()

	var total int64
	for _, id := range players {
		p := s.player(id)
		s.GreaterOrEqual(p.Balance, int64(0))
		s.Empty(p.CurrentMatch)
		total += p.Balance
	}
	s.Equal(int64(100*len(players)), total)
	s.Len(s.rec.OfType(domain.EventMatchResult, ""), 20)
}

func (s *MatchServiceSuite) TestAutoMovePayoutRefundPolicy() {
	s.svc = s.newService(s.store, Options{AutoMovePayout: PayoutRefund})
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.rnd.queue(1) // bob auto-plays paper and wins
	s.Require().NoError(s.timers.fire(m.ID))

	s.Equal(int64(100), s.player("alice").Balance)
	s.Equal(int64(100), s.player("bob").Balance)
	s.Equal(int64(1), s.player("bob").Wins, "statistics still count the win")
	s.Equal(domain.ResultJoinerWins, s.match(m.ID).Result)
}

func (s *MatchServiceSuite) TestAutoMovePayoutFullByDefault() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.rnd.queue(1)
	s.Require().NoError(s.timers.fire(m.ID))
	s.Equal(int64(110), s.player("bob").Balance)
}

func (s *MatchServiceSuite) TestFailSafeRefund() {
	flaky := &flakyStore{Store: s.store}
	s.svc = s.newService(flaky, DefaultOptions())
	m := s.startMatch(10)

	flaky.fails.Store(3)
	s.Require().NoError(s.timers.fire(m.ID))

	fin := s.match(m.ID)
	s.Equal(domain.StatusFinished, fin.Status)
	s.Equal(domain.ResultDraw, fin.Result)
	s.Equal(int64(100), s.player("alice").Balance)
	s.Equal(int64(100), s.player("bob").Balance)
	s.Empty(s.player("bob").CurrentMatch)

	res := s.results(m.ID)
	s.Require().Len(res, 1)
	s.Equal(domain.ReasonRefund, res[0].Reason)

	for _, id := range []string{"alice", "bob"} {
		p := s.player(id)
		s.Equal(int64(1), p.Draws, id)
		s.Zero(p.Wins, id)
		s.Zero(p.Losses, id)
	}
}

func (s *MatchServiceSuite) TestCorruptMatchIsDropped() {
	now := s.clock.Now()
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.PutPlayer(ctx, &domain.Player{ID: "alice", Balance: 90, CurrentMatch: "ghost-match"}); err != nil {
			return err
		}
		return tx.PutMatch(ctx, &domain.Match{
			ID: "ghost-match", CreatorID: "alice", JoinerID: "ghost", Stake: 10,
			Status: domain.StatusPlaying, CreatedAt: now, StartedAt: &now,
		})
	})
	s.Require().NoError(err)

	s.svc.HandleTimeout(s.ctx, "ghost-match")

	_, err = s.store.GetMatch(s.ctx, "ghost-match")
	s.ErrorIs(err, domain.ErrMatchNotFound)
	s.Empty(s.player("alice").CurrentMatch)
	s.Equal(int64(90), s.player("alice").Balance, "escrow of a corrupt match is not recovered")
	s.Empty(s.results("ghost-match"))
}

func (s *MatchServiceSuite) TestSweepCountsOnlyMatchesItSettled() {
	m := s.startMatch(10)
	listed := s.match(m.ID)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveScissors))
	s.clock.Advance(time.Minute)

	s.svc = s.newService(&staleListStore{Store: s.store, playing: []*domain.Match{listed}}, DefaultOptions())
	rep, err := s.svc.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(SweepReport{}, rep)

	s.Len(s.results(m.ID), 1)
	s.Equal(int64(110), s.player("alice").Balance)
	s.Equal(int64(90), s.player("bob").Balance)
}

func (s *MatchServiceSuite) TestSweep() {
	stale, err := s.svc.CreateMatch(s.ctx, "carol", 10)
	s.Require().NoError(err)

	orphan := s.startMatch(10)
	s.timers.Cancel(orphan.ID) // as after a restart

	done, err := s.svc.CreateMatch(s.ctx, "dave", 10)
	s.Require().NoError(err)
	_, err = s.svc.JoinMatch(s.ctx, done.ID, "erin")
	s.Require().NoError(err)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, done.ID, "dave", domain.MoveRock))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, done.ID, "erin", domain.MoveRock))

	rep, err := s.svc.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(SweepReport{}, rep, "nothing is old enough yet")

	s.clock.Advance(2 * time.Hour)
	fresh, err := s.svc.CreateMatch(s.ctx, "frank", 10)
	s.Require().NoError(err)

	rep, err = s.svc.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(SweepReport{Cancelled: 1, TimedOut: 1, Purged: 1}, rep)

	_, err = s.store.GetMatch(s.ctx, stale.ID)
	s.ErrorIs(err, domain.ErrMatchNotFound)
	s.Empty(s.player("carol").CurrentMatch)
	stales := s.rec.OfType(domain.EventMatchCancelled, stale.ID)
	s.Require().Len(stales, 1)
	s.Equal(domain.MatchCancelled{Reason: "stale"}, stales[0].Payload)

	// the orphan is settled by this pass and only just finished, so it is kept
	o := s.match(orphan.ID)
	s.Equal(domain.StatusFinished, o.Status)
	s.Len(s.results(orphan.ID), 1)

	_, err = s.store.GetMatch(s.ctx, done.ID)
	s.ErrorIs(err, domain.ErrMatchNotFound)
	s.Equal(domain.StatusWaiting, s.match(fresh.ID).Status)
}

func (s *MatchServiceSuite) TestRearmTimers() {
	m := s.startMatch(10)
	s.timers.Cancel(m.ID)
	s.clock.Advance(4 * time.Second)

	n, err := s.svc.RearmTimers(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.True(s.timers.Armed(m.ID))
	s.Equal(6*time.Second, s.timers.delay(m.ID))

	n, err = s.svc.RearmTimers(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, n, "armed matches are left alone")
}

func (s *MatchServiceSuite) TestGetOpenMatches() {
	cheap, err := s.svc.CreateMatch(s.ctx, "alice", 10)
	s.Require().NoError(err)
	_, err = s.svc.CreateMatch(s.ctx, "carol", 80)
	s.Require().NoError(err)
	_, err = s.svc.CreateMatch(s.ctx, "dave", 40)
	s.Require().NoError(err)
	s.setBalance("dave", 30) // creator can no longer cover it

	_, err = s.svc.GetPlayer(s.ctx, "bob")
	s.Require().NoError(err)
	s.setBalance("bob", 50)

	open, err := s.svc.GetOpenMatches(s.ctx, "bob")
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(cheap.ID, open[0].MatchID)
	s.Equal(int64(10), open[0].Stake)

	own, err := s.svc.GetOpenMatches(s.ctx, "alice")
	s.Require().NoError(err)
	for _, o := range own {
		s.NotEqual(cheap.ID, o.MatchID)
	}
}

func (s *MatchServiceSuite) TestSnapshotHidesMovesUntilFinished() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MoveScissors))

	snap, err := s.svc.GetMatchSnapshot(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusPlaying, snap.Status)
	s.True(snap.CreatorMoved)
	s.False(snap.JoinerMoved)
	s.Empty(snap.CreatorMove)
	s.Require().NotNil(snap.Deadline)
	s.Equal(s.clock.Now().Add(10*time.Second), *snap.Deadline)

	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MovePaper))
	snap, err = s.svc.GetMatchSnapshot(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(domain.MoveScissors, snap.CreatorMove)
	s.Equal(domain.MovePaper, snap.JoinerMove)
	s.Equal(domain.ResultCreatorWins, snap.Result)
	s.Nil(snap.Deadline)
}

func (s *MatchServiceSuite) TestLedgerHistory() {
	m := s.startMatch(10)
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "alice", domain.MovePaper))
	s.Require().NoError(s.svc.SubmitMove(s.ctx, m.ID, "bob", domain.MoveRock))

	alice, err := s.svc.LedgerHistory(s.ctx, "alice", 10)
	s.Require().NoError(err)
	s.Require().Len(alice, 2)
	s.Equal(domain.LedgerPayout, alice[0].Kind)
	s.Equal(int64(20), alice[0].Amount)
	s.Equal(domain.LedgerStakeEscrow, alice[1].Kind)
	s.Equal(int64(-10), alice[1].Amount)

	bob, err := s.svc.LedgerHistory(s.ctx, "bob", 10)
	s.Require().NoError(err)
	s.Require().Len(bob, 1)

	for _, e := range append(alice, bob...) {
		s.Equal(s.clock.Now(), e.CreatedAt, "entries are stamped by the engine clock")
	}
}

func (s *MatchServiceSuite) TestGetPlayerProvisions() {
	p, err := s.svc.GetPlayer(s.ctx, "newbie")
	s.Require().NoError(err)
	s.Equal(int64(100), p.Balance)
	s.Equal(int64(100), s.player("newbie").Balance)
}
