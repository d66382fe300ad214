package game

import (
	"crypto/rand"
	"math/big"

	"rps_wager/internal/domain"
)

// Outcome of Winner from the first player's point of view.
type Outcome int

const (
	Draw Outcome = iota
	Player1
	Player2
)

// beats maps each move to the move it defeats.
var beats = map[domain.Move]domain.Move{
	domain.MoveRock:     domain.MoveScissors,
	domain.MovePaper:    domain.MoveRock,
	domain.MoveScissors: domain.MovePaper,
}

// Winner decides a round. Equal moves draw; otherwise player1 wins only if
// its move beats player2's, and player2 wins every remaining pair.
func Winner(move1, move2 domain.Move) Outcome {
	if move1 == move2 {
		return Draw
	}
	if beats[move1] == move2 {
		return Player1
	}
	return Player2
}

// Result maps Winner(creatorMove, joinerMove) onto a match result.
func Result(creatorMove, joinerMove domain.Move) domain.Result {
	switch Winner(creatorMove, joinerMove) {
	case Player1:
		return domain.ResultCreatorWins
	case Player2:
		return domain.ResultJoinerWins
	}
	return domain.ResultDraw
}

// Random provides the randomness used for auto moves.
type Random interface {
	// Intn returns a value in [0, n)
	Intn(n int) int
}

// CryptoRandom implements Random with crypto/rand.
type CryptoRandom struct{}

func (CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// RandomMove picks a uniformly random move for a player who ran out of time.
func RandomMove(r Random) domain.Move {
	return domain.Moves[r.Intn(len(domain.Moves))]
}
