package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

// TokenIssuer mints and verifies short-lived HS256 access tokens. It holds no
// state beyond the signing key and is safe under unbounded concurrency. Access
// tokens are never persisted; revocation happens only by refusing to renew.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewTokenIssuer(secret string, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

// AccessTTLSeconds reports the configured lifetime for response payloads.
func (t *TokenIssuer) AccessTTLSeconds() int64 {
	return int64(t.accessTTL.Seconds())
}

// Mint signs a token carrying the username as subject plus a uid claim, so
// ownership checks downstream compare ids without a user lookup.
func (t *TokenIssuer) Mint(username, userID string) (string, error) {
	now := t.now().UTC()
	claims := jwt.MapClaims{
		"sub": username,
		"uid": userID,
		"iat": now.Unix(),
		"exp": now.Add(t.accessTTL).Unix(),
		"typ": "access",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}

	return encoded, nil
}

// Verify checks structure, signature, type and expiry. Expiry is strict: no
// leeway, now >= exp fails. Expired tokens with bad signatures report
// malformed, never expired, so the error does not confirm a forged payload.
func (t *TokenIssuer) Verify(tokenString string) (Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return t.now().UTC() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed),
			errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return Identity{}, apperr.ErrTokenMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, apperr.ErrTokenExpired
		}
		return Identity{}, apperr.ErrTokenMalformed
	}
	if !token.Valid {
		return Identity{}, apperr.ErrTokenMalformed
	}

	if tokenType, _ := claims["typ"].(string); tokenType != "access" {
		return Identity{}, apperr.ErrTokenMalformed
	}

	username, _ := claims["sub"].(string)
	userID, _ := claims["uid"].(string)
	if username == "" || userID == "" {
		return Identity{}, apperr.ErrTokenMalformed
	}

	return Identity{ID: userID, Username: username}, nil
}
