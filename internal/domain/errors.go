package domain

import "errors"

var (
	ErrInvalidStake        = errors.New("invalid stake")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchNotJoinable    = errors.New("match not joinable")
	ErrMatchNotInPlay      = errors.New("match not in play")
	ErrNotParticipant      = errors.New("not a participant")
	ErrInvalidMove         = errors.New("invalid move")
	ErrAlreadyMoved        = errors.New("already moved")
	ErrAlreadySettled      = errors.New("already settled")
	ErrAlreadyInMatch      = errors.New("player already in a match")
	ErrMatchNotCancellable = errors.New("match can no longer be cancelled")
	ErrMatchNotFinished    = errors.New("match not finished")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrCorruptMatch        = errors.New("match references unknown player")
)
