package domain

import "time"

type EventType string

const (
	EventMatchStarted            EventType = "match_started"
	EventMoveMade                EventType = "move_made"
	EventMatchResult             EventType = "match_result"
	EventMatchCancelled          EventType = "match_cancelled"
	EventRematchAcceptedByPlayer EventType = "rematch_accepted_by_player"
	EventRematchDeclined         EventType = "rematch_declined"
)

// Event is one state transition published to the fan-out layer.
type Event struct {
	Type    EventType `json:"type"`
	MatchID string    `json:"match_id"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type MatchStarted struct {
	Stake           int64  `json:"stake"`
	CreatorID       string `json:"creator_id"`
	JoinerID        string `json:"joiner_id"`
	Rematch         bool   `json:"rematch"`
	PreviousMatchID string `json:"previous_match_id,omitempty"`
}

// MoveMade never carries the move itself so both moves stay hidden until settlement.
type MoveMade struct {
	Role Role `json:"role"`
	Auto bool `json:"auto"`
}

// Settlement reasons reported in MatchResult.
const (
	ReasonMoves   = "moves"
	ReasonTimeout = "timeout"
	ReasonRefund  = "refund"
)

type MatchResult struct {
	CreatorMove    Move   `json:"creator_move"`
	JoinerMove     Move   `json:"joiner_move"`
	CreatorAuto    bool   `json:"creator_auto"`
	JoinerAuto     bool   `json:"joiner_auto"`
	Result         Result `json:"result"`
	Reason         string `json:"reason"`
	Stake          int64  `json:"stake"`
	CreatorBalance int64  `json:"creator_balance"`
	JoinerBalance  int64  `json:"joiner_balance"`
	CanRematch     bool   `json:"can_rematch"`
}

type MatchCancelled struct {
	Reason string `json:"reason"`
}

type RematchAcceptedByPlayer struct {
	Role Role `json:"role"`
}

type RematchDeclined struct {
	Reason string `json:"reason,omitempty"`
	Role   Role   `json:"role,omitempty"`
}
