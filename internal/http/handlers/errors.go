package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rps_wager/internal/domain"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{domain.ErrInvalidStake, http.StatusBadRequest, "INVALID_STAKE"},
	{domain.ErrInvalidMove, http.StatusBadRequest, "INVALID_MOVE"},
	{domain.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
	{domain.ErrMatchNotFound, http.StatusNotFound, "MATCH_NOT_FOUND"},
	{domain.ErrPlayerNotFound, http.StatusNotFound, "PLAYER_NOT_FOUND"},
	{domain.ErrNotParticipant, http.StatusForbidden, "NOT_PARTICIPANT"},
	{domain.ErrMatchNotJoinable, http.StatusConflict, "MATCH_NOT_JOINABLE"},
	{domain.ErrMatchNotInPlay, http.StatusConflict, "MATCH_NOT_IN_PLAY"},
	{domain.ErrAlreadyMoved, http.StatusConflict, "ALREADY_MOVED"},
	{domain.ErrAlreadySettled, http.StatusConflict, "ALREADY_SETTLED"},
	{domain.ErrAlreadyInMatch, http.StatusConflict, "ALREADY_IN_MATCH"},
	{domain.ErrMatchNotCancellable, http.StatusConflict, "MATCH_NOT_CANCELLABLE"},
	{domain.ErrMatchNotFinished, http.StatusConflict, "MATCH_NOT_FINISHED"},
}

// statusFor maps an engine error to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error", "code": code})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
