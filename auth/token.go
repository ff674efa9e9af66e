package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lanshare/errors"
)

// SessionClaims is the data carried inside a session token. Identity is
// the display name; there are no accounts or passwords on a LAN
// deployment, the token only binds a socket to a name.
type SessionClaims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret   []byte
	duration time.Duration
}

func NewTokenManager(secret []byte, duration time.Duration) *TokenManager {
	return &TokenManager{secret: secret, duration: duration}
}

// Generate creates a signed HS256 session token for identity.
func (m *TokenManager) Generate(identity string) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "lanshare",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate checks signature and expiry and returns the claims.
func (m *TokenManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Identity == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}
