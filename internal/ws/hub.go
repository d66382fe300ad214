package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"rps_wager/internal/domain"
)

// Hub tracks which connected clients watch which match and relays domain
// events to them. It never touches match state.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		log:   log,
	}
}

// Subscribe moves c into the room of matchID, leaving any previous room.
func (h *Hub) Subscribe(c *Client, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	h.joinLocked(c, matchID)
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
}

func (h *Hub) joinLocked(c *Client, matchID string) {
	room, ok := h.rooms[matchID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[matchID] = room
	}
	room[c] = struct{}{}
	c.setMatch(matchID)
}

func (h *Hub) leaveLocked(c *Client) {
	id := c.Match()
	if id == "" {
		return
	}
	if room, ok := h.rooms[id]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, id)
		}
	}
	c.setMatch("")
}

// RoomSize reports how many clients watch matchID.
func (h *Hub) RoomSize(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

// Publish implements events.Publisher for a single-instance deployment.
func (h *Hub) Publish(_ context.Context, ev domain.Event) error {
	data, err := json.Marshal(Outbound{Type: MsgEvent, MatchID: ev.MatchID, Data: ev})
	if err != nil {
		return err
	}
	prev := ""
	if started, ok := ev.Payload.(domain.MatchStarted); ok {
		prev = started.PreviousMatchID
	}
	h.deliver(ev.MatchID, prev, data)
	return nil
}

// Relay delivers an event that arrived already encoded, e.g. from redis
// pub/sub.
func (h *Hub) Relay(matchID string, raw []byte) {
	var hdr eventHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		h.log.Warn("ws: dropping undecodable event", "match_id", matchID, "error", err)
		return
	}
	data, err := json.Marshal(Outbound{Type: MsgEvent, MatchID: matchID, Data: json.RawMessage(raw)})
	if err != nil {
		return
	}
	prev := ""
	if hdr.Type == domain.EventMatchStarted {
		prev = hdr.Payload.PreviousMatchID
	}
	h.deliver(matchID, prev, data)
}

// deliver sends data to the room of matchID. A rematch start carries the
// previous match id: its watchers are moved into the new room first.
func (h *Hub) deliver(matchID, previousID string, data []byte) {
	h.mu.Lock()
	if previousID != "" {
		for c := range h.rooms[previousID] {
			h.leaveLocked(c)
			h.joinLocked(c, matchID)
		}
	}
	targets := make([]*Client, 0, len(h.rooms[matchID]))
	for c := range h.rooms[matchID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.trySend(data) {
			h.log.Warn("ws: client send buffer full, dropping event", "player_id", c.PlayerID, "match_id", matchID)
		}
	}
}
