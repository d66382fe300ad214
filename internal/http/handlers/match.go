package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rps_wager/internal/domain"
)

type createMatchRequest struct {
	Stake int64 `json:"stake"`
}

type moveRequest struct {
	Move domain.Move `json:"move"`
}

// CreateMatch opens a Waiting match staked by the caller.
func (h *Handler) CreateMatch(c *gin.Context) {
	playerID, ok := getPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	m, err := h.Engine.CreateMatch(c.Request.Context(), playerID, req.Stake)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, http.StatusCreated, m.ID)
}

func (h *Handler) JoinMatch(c *gin.Context) {
	playerID, ok := getPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	m, err := h.Engine.JoinMatch(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, http.StatusOK, m.ID)
}

func (h *Handler) SubmitMove(c *gin.Context) {
	playerID, ok := getPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.Engine.SubmitMove(c.Request.Context(), c.Param("id"), playerID, req.Move); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) CancelMatch(c *gin.Context) {
	playerID, ok := getPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.Engine.CancelMatch(c.Request.Context(), c.Param("id"), playerID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// RequestRematch records the caller's rematch vote. When both sides have
// agreed the response carries the new match.
func (h *Handler) RequestRematch(c *gin.Context) {
	playerID, ok := getPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	m, err := h.Engine.RequestRematch(c.Request.Context(), c.Param("id"), playerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if m == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
		return
	}
	h.snapshot(c, http.StatusCreated, m.ID)
}

func (h *Handler) DeclineRematch(c *gin.Context) {
	playerID, ok := getPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.Engine.DeclineRematch(c.Request.Context(), c.Param("id"), playerID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}

func (h *Handler) OpenMatches(c *gin.Context) {
	playerID, ok := getPlayerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	list, err := h.Engine.GetOpenMatches(c.Request.Context(), playerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": list})
}

func (h *Handler) GetMatch(c *gin.Context) {
	h.snapshot(c, http.StatusOK, c.Param("id"))
}

func (h *Handler) snapshot(c *gin.Context, status int, matchID string) {
	snap, err := h.Engine.GetMatchSnapshot(c.Request.Context(), matchID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, snap)
}
