package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

const (
	defaultAccessTTL   = 15 * time.Minute
	defaultRefreshTTL  = 7 * 24 * time.Hour
	defaultMaxAttempts = 5
	defaultLockWindow  = 15 * time.Minute

	maxUsernameLen = 64
	// bcrypt only hashes the first 72 bytes and the x/crypto implementation
	// rejects anything longer, so longer passwords are a validation failure,
	// not a hashing failure.
	maxPasswordLen = 72
)

// dummyHash is compared against when a login names an unknown username, so
// the unknown-username and wrong-password paths cost the same bcrypt work and
// return the same error. Hash of an unguessable throwaway value.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Store is the persistence contract the session service orchestrates. The
// Postgres Repository is the production implementation; tests substitute an
// in-memory one.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)

	CreateRefreshToken(ctx context.Context, userID, rawToken string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, rawOldToken, rawNewToken string, newExpiresAt, now time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, rawToken string) error

	LoginAttempt(ctx context.Context, username string) (LoginAttempt, error)
	RegisterFailedAttempt(ctx context.Context, username string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error)
	ResetLoginAttempt(ctx context.Context, username string) error
}

// Service composes the credential store, token issuer and refresh-token store
// behind the /auth endpoints. It holds no state of its own beyond config.
type Service struct {
	store        Store
	tokens       *TokenIssuer
	refreshTTL   time.Duration
	bcryptCost   int
	maxAttempts  int
	lockDuration time.Duration
	now          func() time.Time
}

func NewService(store Store, tokens *TokenIssuer) *Service {
	return &Service{
		store:        store,
		tokens:       tokens,
		refreshTTL:   defaultRefreshTTL,
		bcryptCost:   bcrypt.DefaultCost,
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockWindow,
		now:          time.Now,
	}
}

func (s *Service) WithSecurityConfig(bcryptCost, maxAttempts int, lockDuration, refreshTTL time.Duration) {
	if bcryptCost >= bcrypt.MinCost && bcryptCost <= bcrypt.MaxCost {
		s.bcryptCost = bcryptCost
	}
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
}

// Register creates an account. Duplicate detection rides on the unique index:
// under a race, exactly one insert wins and the loser observes the constraint
// violation already translated to ErrUsernameTaken. Usernames are
// case-sensitive and stored as given, minus surrounding whitespace.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)

	fields := map[string]string{}
	if username == "" {
		fields["username"] = "is required"
	} else if len(username) > maxUsernameLen {
		fields["username"] = fmt.Sprintf("must be at most %d characters", maxUsernameLen)
	}
	if strings.TrimSpace(password) == "" {
		fields["password"] = "is required"
	} else if len(password) > maxPasswordLen {
		fields["password"] = fmt.Sprintf("must be at most %d bytes", maxPasswordLen)
	}
	if len(fields) > 0 {
		return User{}, apperr.Invalid(fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.store.CreateUser(ctx, username, string(hash))
}

// Login verifies credentials and opens a session: one fresh refresh token per
// call, so repeated logins accumulate independent sessions (multi-device).
// Unknown username and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return TokenPair{}, apperr.ErrInvalidCredentials
	}

	now := s.now().UTC()
	attempt, err := s.store.LoginAttempt(ctx, username)
	if err != nil {
		return TokenPair{}, err
	}
	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		return TokenPair{}, s.lockedError(*attempt.LockedUntil, now)
	}

	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Burn the same bcrypt cost as the known-username path.
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return TokenPair{}, s.recordFailure(ctx, username, now)
		}
		return TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, s.recordFailure(ctx, username, now)
	}

	if err := s.store.ResetLoginAttempt(ctx, username); err != nil {
		return TokenPair{}, err
	}

	return s.openSession(ctx, user)
}

// Refresh exchanges a refresh token for a new access token and a rotated
// refresh token. The presented token is consumed atomically: expired tokens
// are deleted on detection, and at most one of two concurrent calls with the
// same token can succeed.
func (s *Service) Refresh(ctx context.Context, rawToken string) (TokenPair, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return TokenPair{}, apperr.ErrRefreshTokenNotFound
	}

	rotated, err := randomToken(48)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate rotated refresh token: %w", err)
	}

	now := s.now().UTC()
	userID, err := s.store.ConsumeRefreshToken(ctx, rawToken, rotated, now.Add(s.refreshTTL), now)
	if err != nil {
		return TokenPair{}, err
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TokenPair{}, apperr.ErrRefreshTokenNotFound
		}
		return TokenPair{}, err
	}

	access, err := s.tokens.Mint(user.Username, user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: rotated,
		TokenType:    "Bearer",
		ExpiresIn:    s.tokens.AccessTTLSeconds(),
	}, nil
}

// Logout revokes a refresh token. Idempotent.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return apperr.Invalid(map[string]string{"refreshToken": "is required"})
	}
	return s.store.RevokeRefreshToken(ctx, rawToken)
}

// CurrentUser resolves the authenticated identity back to its account row.
func (s *Service) CurrentUser(ctx context.Context, identity Identity) (User, error) {
	user, err := s.store.UserByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apperr.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func (s *Service) openSession(ctx context.Context, user User) (TokenPair, error) {
	access, err := s.tokens.Mint(user.Username, user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := randomToken(48)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.store.CreateRefreshToken(ctx, user.ID, refresh, s.now().UTC().Add(s.refreshTTL)); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       user.ID,
		TokenType:    "Bearer",
		ExpiresIn:    s.tokens.AccessTTLSeconds(),
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, username string, now time.Time) error {
	lockedUntil, err := s.store.RegisterFailedAttempt(ctx, username, s.maxAttempts, s.lockDuration, now)
	if err != nil {
		return err
	}
	if lockedUntil != nil {
		return s.lockedError(*lockedUntil, now)
	}
	return apperr.ErrInvalidCredentials
}

func (s *Service) lockedError(until, now time.Time) error {
	retryAfter := int(until.Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &apperr.LockedError{RetryAfterSeconds: retryAfter}
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
