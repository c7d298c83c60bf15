package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

const uniqueViolation = "23505"

// Repository is the Postgres store behind the credential and refresh-token
// subsystem. Refresh tokens are stored as sha256 hashes; the raw value only
// ever exists in the client's hands and in the request that presents it.
type Repository struct {
	db *sql.DB
}

type CleanupResult struct {
	DeletedRefreshTokens int64 `json:"deleted_refresh_tokens"`
	DeletedLoginAttempts int64 `json:"deleted_login_attempts"`
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (r *Repository) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	user := User{
		ID:           id.String(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, apperr.ErrUsernameTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) UserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, sql.ErrNoRows
		}
		return User{}, fmt.Errorf("query user by username: %w", err)
	}

	return user, nil
}

func (r *Repository) UserByID(ctx context.Context, id string) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, sql.ErrNoRows
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}

	return user, nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, userID, rawToken string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, id.String(), userID, hashToken(rawToken), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// ConsumeRefreshToken runs the lookup-check-rotate sequence as one transaction
// with a row lock, so two concurrent presentations of the same token cannot
// both succeed. Outcomes:
//   - absent: ErrRefreshTokenNotFound
//   - expired: the row is deleted before failing with ErrRefreshTokenExpired,
//     so a later find reports not-found
//   - rotation tombstone (replaced_by set): reuse of a rotated token is theft
//     evidence; every live token for the owner is revoked and the caller sees
//     not-found
//   - logout tombstone (replaced_by null): the token was revoked voluntarily,
//     so a replay is just a dead token; not-found, other sessions untouched
//   - valid: the row is tombstoned, the replacement inserted, owner id returned
func (r *Repository) ConsumeRefreshToken(ctx context.Context, rawOldToken, rawNewToken string, newExpiresAt, now time.Time) (string, error) {
	oldHash := hashToken(rawOldToken)
	now = now.UTC()

	newID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate rotated token id: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin refresh consume tx: %w", err)
	}
	defer tx.Rollback()

	var oldID string
	var userID string
	var expiresAt time.Time
	var revokedAt sql.NullTime
	var replacedBy sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, expires_at, revoked_at, replaced_by
		FROM auth_refresh_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, oldHash).Scan(&oldID, &userID, &expiresAt, &revokedAt, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperr.ErrRefreshTokenNotFound
		}
		return "", fmt.Errorf("read refresh token: %w", err)
	}

	if revokedAt.Valid && !replacedBy.Valid {
		return "", apperr.ErrRefreshTokenNotFound
	}

	if revokedAt.Valid {
		_, err = tx.ExecContext(ctx, `
			UPDATE auth_refresh_tokens
			SET revoked_at = $2
			WHERE user_id = $1 AND revoked_at IS NULL
		`, userID, now)
		if err != nil {
			return "", fmt.Errorf("revoke sessions after token reuse: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("commit reuse revocation tx: %w", err)
		}
		return "", apperr.ErrRefreshTokenNotFound
	}

	if !now.Before(expiresAt.UTC()) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM auth_refresh_tokens WHERE id = $1`, oldID); err != nil {
			return "", fmt.Errorf("delete expired refresh token: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("commit expiry deletion tx: %w", err)
		}
		return "", apperr.ErrRefreshTokenExpired
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, newID.String(), userID, hashToken(rawNewToken), newExpiresAt.UTC())
	if err != nil {
		return "", fmt.Errorf("insert rotated refresh token: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = $2, replaced_by = $3
		WHERE id = $1
	`, oldID, now, newID.String())
	if err != nil {
		return "", fmt.Errorf("tombstone rotated refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit refresh consume tx: %w", err)
	}

	return userID, nil
}

// RevokeRefreshToken is the logout path. Idempotent: revoking an absent or
// already-revoked token is not an error.
func (r *Repository) RevokeRefreshToken(ctx context.Context, rawToken string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token_hash = $1
	`, hashToken(rawToken), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

func (r *Repository) LoginAttempt(ctx context.Context, username string) (LoginAttempt, error) {
	attempt := LoginAttempt{Username: username}

	var lockedUntil sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until
		FROM auth_login_attempts
		WHERE username = $1
	`, username).Scan(&attempt.FailedAttempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attempt, nil
		}
		return LoginAttempt{}, fmt.Errorf("query login attempt: %w", err)
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		attempt.LockedUntil = &value
	}

	return attempt, nil
}

func (r *Repository) RegisterFailedAttempt(ctx context.Context, username string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin login attempt tx: %w", err)
	}
	defer tx.Rollback()

	var failed int
	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until
		FROM auth_login_attempts
		WHERE username = $1
		FOR UPDATE
	`, username).Scan(&failed, &lockedUntil)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock login attempt row: %w", err)
	}

	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		until := lockedUntil.Time.UTC()
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit existing lock tx: %w", err)
		}
		return &until, nil
	}

	failed++
	var nextLock *time.Time
	var nextLockValue any
	if failed >= maxAttempts {
		until := now.UTC().Add(lockDuration)
		nextLock = &until
		nextLockValue = until
		failed = 0
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_login_attempts (username, failed_attempts, locked_until, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username)
		DO UPDATE SET
			failed_attempts = EXCLUDED.failed_attempts,
			locked_until = EXCLUDED.locked_until,
			updated_at = EXCLUDED.updated_at
	`, username, failed, nextLockValue, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("upsert failed login attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit login attempt tx: %w", err)
	}

	return nextLock, nil
}

func (r *Repository) ResetLoginAttempt(ctx context.Context, username string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_login_attempts
		WHERE username = $1
	`, username)
	if err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}

	return nil
}

// CleanupStaleAuthData purges expired refresh tokens, rotation tombstones past
// their retention window, and idle lockout rows. Expiry is otherwise detected
// lazily at use; this is hygiene, not a correctness requirement.
func (r *Repository) CleanupStaleAuthData(ctx context.Context, tombstoneRetention, loginAttemptRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if tombstoneRetention <= 0 {
		tombstoneRetention = 14 * 24 * time.Hour
	}
	if loginAttemptRetention <= 0 {
		loginAttemptRetention = 30 * 24 * time.Hour
	}

	now := time.Now().UTC()

	deletedTokens, err := r.deleteStaleRefreshTokens(ctx, now.Add(-tombstoneRetention), batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	deletedAttempts, err := r.deleteStaleLoginAttempts(ctx, now.Add(-loginAttemptRetention), batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{
		DeletedRefreshTokens: deletedTokens,
		DeletedLoginAttempts: deletedAttempts,
	}, nil
}

func (r *Repository) deleteStaleRefreshTokens(ctx context.Context, tombstoneCutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM auth_refresh_tokens
			WHERE expires_at < NOW() OR (revoked_at IS NOT NULL AND revoked_at < $1)
			ORDER BY created_at ASC
			LIMIT $2
		)
		DELETE FROM auth_refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, tombstoneCutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) deleteStaleLoginAttempts(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT username
			FROM auth_login_attempts
			WHERE updated_at < $1
			  AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM auth_login_attempts t
		USING stale
		WHERE t.username = stale.username
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login attempts rows affected: %w", err)
	}

	return affected, nil
}
