package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoPlayerID   = errors.New("player id not found in token")
)

// PlayerClaims carries the caller's stable player id in the subject.
type PlayerClaims struct {
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 tokens minted by the session layer.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// ParsePlayerID validates the token (signature, exp, nbf) and returns its subject.
func (v *TokenVerifier) ParsePlayerID(tokenString string) (string, error) {
	claims := &PlayerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrNoPlayerID
	}
	return claims.Subject, nil
}

// Sign mints a token for playerID. Production tokens come from the session
// layer; this exists for tooling and tests sharing the secret.
func (v *TokenVerifier) Sign(playerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := PlayerClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   playerID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
