package ws

import (
	"encoding/json"

	"rps_wager/internal/domain"
)

// client → server
type Inbound struct {
	Type    string          `json:"type"`
	MatchID string          `json:"match_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type MovePayload struct {
	Move domain.Move `json:"move"` // rock | paper | scissors
}

// server → client
type Outbound struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// eventHeader is the part of a relayed event the hub routes on.
type eventHeader struct {
	Type    domain.EventType `json:"type"`
	MatchID string           `json:"match_id"`
	Payload struct {
		PreviousMatchID string `json:"previous_match_id"`
	} `json:"payload"`
}
