package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

func newTestService(t *testing.T) (*Service, *memStore, *fakeClock) {
	t.Helper()

	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := newMemStore()
	service := NewService(store, newTestIssuer(15*time.Minute, clock))
	service.WithSecurityConfig(4, 5, 15*time.Minute, 7*24*time.Hour)
	service.now = clock.Now

	return service, store, clock
}

func TestRegisterValidation(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "pw123"},
		{"whitespace username", "   ", "pw123"},
		{"empty password", "alice", ""},
		{"whitespace password", "alice", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Register(ctx, tc.username, tc.password)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("want ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRegisterPasswordLengthBoundary(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", strings.Repeat("a", 72)); err != nil {
		t.Fatalf("72-byte password should register: %v", err)
	}

	// One byte past bcrypt's input limit must fail validation, not surface as
	// a hashing error outside the taxonomy.
	_, err := service.Register(ctx, "bob", strings.Repeat("a", 73))
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("73-byte password: want ErrInvalidInput, got %v", err)
	}
	var validation *apperr.ValidationError
	if !errors.As(err, &validation) || validation.Fields["password"] == "" {
		t.Fatalf("want a password field message, got %v", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("first register: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := service.Register(ctx, "alice", "other-password"); !errors.Is(err, apperr.ErrUsernameTaken) {
			t.Fatalf("attempt %d: want ErrUsernameTaken, got %v", i, err)
		}
	}
}

func TestRegisterKeepsUsernameCaseSensitive(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "Alice", "pw123"); err != nil {
		t.Fatalf("register Alice: %v", err)
	}
	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register alice should be a distinct account: %v", err)
	}
}

func TestLoginIssuesTokens(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	pair, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("login returned empty tokens")
	}
	if pair.UserID != user.ID {
		t.Fatalf("login userId = %q, want %q", pair.UserID, user.ID)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, unknownUserErr := service.Login(ctx, "nobody", "pw123")
	_, wrongPasswordErr := service.Login(ctx, "alice", "wrong")

	if !errors.Is(unknownUserErr, apperr.ErrInvalidCredentials) {
		t.Fatalf("unknown user: want ErrInvalidCredentials, got %v", unknownUserErr)
	}
	if !errors.Is(wrongPasswordErr, apperr.ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", wrongPasswordErr)
	}
	if unknownUserErr.Error() != wrongPasswordErr.Error() {
		t.Fatalf("error messages differ: %q vs %q", unknownUserErr, wrongPasswordErr)
	}
}

func TestLoginEachCallOpensNewSession(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatal("two logins shared a refresh token")
	}

	// Both sessions stay usable: multi-device.
	if _, err := service.Refresh(ctx, first.RefreshToken); err != nil {
		t.Fatalf("refresh first session: %v", err)
	}
	if _, err := service.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("refresh second session: %v", err)
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	service, _, clock := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = service.Login(ctx, "alice", "wrong")
	}

	var locked *apperr.LockedError
	if !errors.As(lastErr, &locked) {
		t.Fatalf("want LockedError after max failures, got %v", lastErr)
	}

	// Correct password is refused while locked.
	if _, err := service.Login(ctx, "alice", "pw123"); !errors.As(err, &locked) {
		t.Fatalf("want LockedError during lock window, got %v", err)
	}

	clock.Advance(16 * time.Minute)
	if _, err := service.Login(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("login after lock window: %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	service, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := service.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == "" {
		t.Fatal("refresh returned empty tokens")
	}
	if refreshed.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh did not rotate the token")
	}

	if _, revoked := store.tokenState(pair.RefreshToken); !revoked {
		t.Fatal("consumed token was not revoked")
	}
}

func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rotated, err := service.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Presenting the already-rotated token is theft evidence.
	if _, err := service.Refresh(ctx, pair.RefreshToken); !errors.Is(err, apperr.ErrRefreshTokenNotFound) {
		t.Fatalf("reuse: want ErrRefreshTokenNotFound, got %v", err)
	}

	// The legitimate successor dies with it.
	if _, err := service.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, apperr.ErrRefreshTokenNotFound) {
		t.Fatalf("successor after reuse: want ErrRefreshTokenNotFound, got %v", err)
	}
}

func TestRefreshExpiredTokenIsDeleted(t *testing.T) {
	service, store, clock := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	clock.Advance(7*24*time.Hour + time.Minute)

	if _, err := service.Refresh(ctx, pair.RefreshToken); !errors.Is(err, apperr.ErrRefreshTokenExpired) {
		t.Fatalf("want ErrRefreshTokenExpired, got %v", err)
	}

	// Expiry detection deletes the entry, so a second presentation is NotFound.
	if exists, _ := store.tokenState(pair.RefreshToken); exists {
		t.Fatal("expired token still present after consume")
	}
	if _, err := service.Refresh(ctx, pair.RefreshToken); !errors.Is(err, apperr.ErrRefreshTokenNotFound) {
		t.Fatalf("want ErrRefreshTokenNotFound after deletion, got %v", err)
	}
}

func TestRefreshConcurrentDoubleUse(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = service.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	if successes > 1 {
		t.Fatalf("both concurrent refreshes succeeded, want at most one")
	}
}

func TestRefreshAfterLogoutLeavesOtherSessionsAlive(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	phone, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("phone login: %v", err)
	}
	laptop, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("laptop login: %v", err)
	}

	if err := service.Logout(ctx, phone.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Replaying a voluntarily revoked token is just a dead token, not theft
	// evidence: it must not take other sessions down with it.
	if _, err := service.Refresh(ctx, phone.RefreshToken); !errors.Is(err, apperr.ErrRefreshTokenNotFound) {
		t.Fatalf("logged-out token replay: want ErrRefreshTokenNotFound, got %v", err)
	}
	if _, err := service.Refresh(ctx, laptop.RefreshToken); err != nil {
		t.Fatalf("laptop session should survive the replay: %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := service.Login(ctx, "alice", "pw123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := service.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := service.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second logout should be a no-op: %v", err)
	}
	if err := service.Logout(ctx, "never-issued"); err != nil {
		t.Fatalf("logout of unknown token should be a no-op: %v", err)
	}

	if _, err := service.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatal("refresh after logout should fail")
	}
}
