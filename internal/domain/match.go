package domain

import "time"

// Status - стадия жизненного цикла матча
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Move is one of rock, paper or scissors. The zero value means "not submitted".
type Move string

const (
	MoveNone     Move = ""
	MoveRock     Move = "rock"
	MovePaper    Move = "paper"
	MoveScissors Move = "scissors"
)

// Moves lists the allowed moves in a stable order.
var Moves = [3]Move{MoveRock, MovePaper, MoveScissors}

func (m Move) Valid() bool {
	return m == MoveRock || m == MovePaper || m == MoveScissors
}

// Result of a settled match from the creator's point of view.
type Result string

const (
	ResultNone        Result = ""
	ResultDraw        Result = "draw"
	ResultCreatorWins Result = "creator_wins"
	ResultJoinerWins  Result = "joiner_wins"
)

// Role of a participant inside a match.
type Role string

const (
	RoleCreator Role = "creator"
	RoleJoiner  Role = "joiner"
)

// RematchState tracks one participant's side of the rematch handshake.
type RematchState string

const (
	RematchNotRequested RematchState = ""
	RematchRequested    RematchState = "requested"
	RematchAccepted     RematchState = "accepted"
)

type Match struct {
	ID        string `db:"id" json:"id"`
	CreatorID string `db:"creator_id" json:"creator_id"`
	JoinerID  string `db:"joiner_id" json:"joiner_id,omitempty"`
	Stake     int64  `db:"stake" json:"stake"`
	Status    Status `db:"status" json:"status"`

	CreatorMove Move `db:"creator_move" json:"creator_move,omitempty"`
	JoinerMove  Move `db:"joiner_move" json:"joiner_move,omitempty"`
	CreatorAuto bool `db:"creator_auto" json:"creator_auto,omitempty"`
	JoinerAuto  bool `db:"joiner_auto" json:"joiner_auto,omitempty"`

	Result Result `db:"result" json:"result,omitempty"`

	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	StartedAt  *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`

	CreatorRematch RematchState `db:"creator_rematch" json:"creator_rematch,omitempty"`
	JoinerRematch  RematchState `db:"joiner_rematch" json:"joiner_rematch,omitempty"`

	// PreviousMatchID is set on matches spawned by a rematch.
	PreviousMatchID string `db:"previous_match_id" json:"previous_match_id,omitempty"`
}

// Clone returns a deep copy safe to mutate.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	cp := *m
	if m.StartedAt != nil {
		t := *m.StartedAt
		cp.StartedAt = &t
	}
	if m.FinishedAt != nil {
		t := *m.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// RoleOf returns the participant role of playerID, or "" if not a participant.
func (m *Match) RoleOf(playerID string) Role {
	switch {
	case playerID == "":
		return ""
	case playerID == m.CreatorID:
		return RoleCreator
	case playerID == m.JoinerID:
		return RoleJoiner
	}
	return ""
}

// Participants returns creator and joiner ids (joiner may be empty).
func (m *Match) Participants() []string {
	if m.JoinerID == "" {
		return []string{m.CreatorID}
	}
	return []string{m.CreatorID, m.JoinerID}
}

func (m *Match) MoveOf(role Role) Move {
	if role == RoleCreator {
		return m.CreatorMove
	}
	return m.JoinerMove
}

// SetMove fills the slot for role. Slots are write-once; callers check first.
func (m *Match) SetMove(role Role, move Move, auto bool) {
	if role == RoleCreator {
		m.CreatorMove, m.CreatorAuto = move, auto
		return
	}
	m.JoinerMove, m.JoinerAuto = move, auto
}

func (m *Match) BothMoved() bool {
	return m.CreatorMove != MoveNone && m.JoinerMove != MoveNone
}

func (m *Match) RematchOf(role Role) RematchState {
	if role == RoleCreator {
		return m.CreatorRematch
	}
	return m.JoinerRematch
}

func (m *Match) SetRematch(role Role, st RematchState) {
	if role == RoleCreator {
		m.CreatorRematch = st
		return
	}
	m.JoinerRematch = st
}

// RematchAgreed reports whether both participants opted into a rematch.
func (m *Match) RematchAgreed() bool {
	return m.CreatorRematch != RematchNotRequested && m.JoinerRematch != RematchNotRequested
}

func (m *Match) ClearRematch() {
	m.CreatorRematch = RematchNotRequested
	m.JoinerRematch = RematchNotRequested
}

// Active reports whether the match still holds its participants.
func (m *Match) Active() bool {
	return m.Status == StatusWaiting || m.Status == StatusPlaying
}

// Lists reports whether playerID takes part in the match.
func (m *Match) Lists(playerID string) bool {
	return m.RoleOf(playerID) != ""
}
