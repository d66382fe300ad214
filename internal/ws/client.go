package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rps_wager/internal/domain"
	"rps_wager/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendBuffer = 256
	opTimeout  = 5 * time.Second
)

// Engine is the part of the match engine reachable over a socket.
type Engine interface {
	SubmitMove(ctx context.Context, matchID, playerID string, move domain.Move) error
	RequestRematch(ctx context.Context, matchID, playerID string) (*domain.Match, error)
	DeclineRematch(ctx context.Context, matchID, playerID string) error
	GetMatchSnapshot(ctx context.Context, matchID string) (*service.Snapshot, error)
}

type Client struct {
	PlayerID string
	Conn     *websocket.Conn
	Send     chan []byte

	hub    *Hub
	engine Engine
	log    *slog.Logger

	mu      sync.Mutex
	matchID string
	closed  bool
}

func NewClient(playerID string, conn *websocket.Conn, hub *Hub, engine Engine, log *slog.Logger) *Client {
	return &Client{
		PlayerID: playerID,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		hub:      hub,
		engine:   engine,
		log:      log.With("player_id", playerID),
	}
}

// Match returns the match the client currently watches.
func (c *Client) Match() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matchID
}

func (c *Client) setMatch(id string) {
	c.mu.Lock()
	c.matchID = id
	c.mu.Unlock()
}

// trySend queues data without blocking; false means the client is too slow
// or gone.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendJSON(msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Client) sendError(matchID string, err error) {
	c.sendJSON(Outbound{Type: MsgError, MatchID: matchID, Data: ErrorPayload{Message: err.Error()}})
}

// Run serves the connection until the peer goes away.
func (c *Client) Run() {
	go c.writePump()
	c.sendJSON(Outbound{Type: MsgReady})
	c.readPump()
}

func (c *Client) readPump() {
	defer c.close()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("ws read error", "error", err)
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		c.sendError("", errors.New("malformed message"))
		return
	}
	matchID := in.MatchID
	if matchID == "" {
		matchID = c.Match()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch in.Type {
	case MsgPing:
		c.sendJSON(Outbound{Type: MsgPong})
	case MsgSubscribe:
		snap, err := c.engine.GetMatchSnapshot(ctx, matchID)
		if err != nil {
			c.sendError(matchID, err)
			return
		}
		c.hub.Subscribe(c, matchID)
		c.sendJSON(Outbound{Type: MsgSnapshot, MatchID: matchID, Data: snap})
	case MsgMove:
		var p MovePayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			c.sendError(matchID, domain.ErrInvalidMove)
			return
		}
		if err := c.engine.SubmitMove(ctx, matchID, c.PlayerID, p.Move); err != nil {
			c.sendError(matchID, err)
		}
	case MsgRematch:
		if _, err := c.engine.RequestRematch(ctx, matchID, c.PlayerID); err != nil {
			c.sendError(matchID, err)
		}
	case MsgDeclineRematch:
		if err := c.engine.DeclineRematch(ctx, matchID, c.PlayerID); err != nil {
			c.sendError(matchID, err)
		}
	default:
		c.sendError(matchID, errors.New("unknown message type"))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close() {
	c.hub.Unsubscribe(c)
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
	c.mu.Unlock()
}
