package auth

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

// memStore mirrors the Repository's semantics in memory, including the atomic
// consume contract: the whole lookup-check-rotate sequence runs under one lock.
type memStore struct {
	mu       sync.Mutex
	nextID   int
	users    map[string]User       // by id
	byName   map[string]string     // username -> id
	tokens   map[string]*memToken  // by raw token
	attempts map[string]LoginAttempt
}

type memToken struct {
	userID     string
	expiresAt  time.Time
	revokedAt  *time.Time
	replacedBy string
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]User),
		byName:   make(map[string]string),
		tokens:   make(map[string]*memToken),
		attempts: make(map[string]LoginAttempt),
	}
}

func (m *memStore) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[username]; exists {
		return User{}, apperr.ErrUsernameTaken
	}

	m.nextID++
	user := User{
		ID:           fmt.Sprintf("user-%d", m.nextID),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[user.ID] = user
	m.byName[username] = user.ID

	return user, nil
}

func (m *memStore) UserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[username]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return m.users[id], nil
}

func (m *memStore) UserByID(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) CreateRefreshToken(ctx context.Context, userID, rawToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[rawToken] = &memToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memStore) ConsumeRefreshToken(ctx context.Context, rawOldToken, rawNewToken string, newExpiresAt, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.tokens[rawOldToken]
	if !ok {
		return "", apperr.ErrRefreshTokenNotFound
	}

	if entry.revokedAt != nil {
		// Logout tombstone: a replay is just a dead token.
		if entry.replacedBy == "" {
			return "", apperr.ErrRefreshTokenNotFound
		}
		// Rotation tombstone: reuse is theft evidence.
		for _, other := range m.tokens {
			if other.userID == entry.userID && other.revokedAt == nil {
				revoked := now
				other.revokedAt = &revoked
			}
		}
		return "", apperr.ErrRefreshTokenNotFound
	}

	if !now.Before(entry.expiresAt) {
		delete(m.tokens, rawOldToken)
		return "", apperr.ErrRefreshTokenExpired
	}

	revoked := now
	entry.revokedAt = &revoked
	entry.replacedBy = rawNewToken
	m.tokens[rawNewToken] = &memToken{userID: entry.userID, expiresAt: newExpiresAt}

	return entry.userID, nil
}

func (m *memStore) RevokeRefreshToken(ctx context.Context, rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.tokens[rawToken]; ok && entry.revokedAt == nil {
		revoked := time.Now().UTC()
		entry.revokedAt = &revoked
	}
	return nil
}

func (m *memStore) LoginAttempt(ctx context.Context, username string) (LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempt, ok := m.attempts[username]
	if !ok {
		return LoginAttempt{Username: username}, nil
	}
	return attempt, nil
}

func (m *memStore) RegisterFailedAttempt(ctx context.Context, username string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempt := m.attempts[username]
	attempt.Username = username

	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		until := *attempt.LockedUntil
		return &until, nil
	}

	attempt.FailedAttempts++
	var nextLock *time.Time
	if attempt.FailedAttempts >= maxAttempts {
		until := now.Add(lockDuration)
		attempt.LockedUntil = &until
		attempt.FailedAttempts = 0
		nextLock = &until
	}
	m.attempts[username] = attempt

	return nextLock, nil
}

func (m *memStore) ResetLoginAttempt(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.attempts, username)
	return nil
}

// tokenState reports a raw token's state for assertions.
func (m *memStore) tokenState(raw string) (exists, revoked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.tokens[raw]
	if !ok {
		return false, false
	}
	return true, entry.revokedAt != nil
}
