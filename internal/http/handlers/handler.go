package handlers

import (
	"context"
	"log/slog"

	"rps_wager/internal/domain"
	"rps_wager/internal/service"
)

// Engine is the match engine as seen by the HTTP layer.
type Engine interface {
	CreateMatch(ctx context.Context, creatorID string, stake int64) (*domain.Match, error)
	JoinMatch(ctx context.Context, matchID, joinerID string) (*domain.Match, error)
	SubmitMove(ctx context.Context, matchID, playerID string, move domain.Move) error
	CancelMatch(ctx context.Context, matchID, requesterID string) error
	RequestRematch(ctx context.Context, matchID, playerID string) (*domain.Match, error)
	DeclineRematch(ctx context.Context, matchID, playerID string) error
	GetOpenMatches(ctx context.Context, playerID string) ([]service.OpenMatch, error)
	GetMatchSnapshot(ctx context.Context, matchID string) (*service.Snapshot, error)
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	LedgerHistory(ctx context.Context, playerID string, limit int) ([]*domain.LedgerEntry, error)
}

type Handler struct {
	Engine Engine
	log    *slog.Logger
}

func NewHandler(engine Engine, log *slog.Logger) *Handler {
	return &Handler{Engine: engine, log: log}
}

// getPlayerID извлекает player_id из контекста Gin
func getPlayerID(c interface{ Get(any) (any, bool) }) (string, bool) {
	v, ok := c.Get("player_id")
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
