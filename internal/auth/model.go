package auth

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is what the middleware resolves from a verified access token and
// hands to downstream handlers through the request context.
type Identity struct {
	ID       string
	Username string
}

// TokenPair is the login/refresh response payload. Field names follow the
// public API contract, not the storage schema.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId,omitempty"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type LoginAttempt struct {
	Username       string
	FailedAttempts int
	LockedUntil    *time.Time
}
