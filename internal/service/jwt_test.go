package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret")
	tok, err := v.Sign("alice", time.Minute)
	require.NoError(t, err)

	id, err := v.ParsePlayerID(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)
}

func TestTokenRejected(t *testing.T) {
	v := NewTokenVerifier("secret")

	expired, err := v.Sign("alice", -time.Minute)
	require.NoError(t, err)
	_, err = v.ParsePlayerID(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewTokenVerifier("other").Sign("alice", time.Minute)
	require.NoError(t, err)
	_, err = v.ParsePlayerID(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.ParsePlayerID(noSub)
	assert.ErrorIs(t, err, ErrNoPlayerID)
}
