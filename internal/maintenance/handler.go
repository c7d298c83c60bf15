package maintenance

import (
	"net/http"
	"strings"
	"time"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/auth"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/observability"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/web"
)

// CleanupHandler purges expired refresh tokens, rotation tombstones and stale
// lockout rows on a schedule. Guarded by a shared cron secret; an empty secret
// disables the endpoint entirely.
type CleanupHandler struct {
	repo                  *auth.Repository
	logger                *observability.Logger
	cronSecret            string
	tombstoneRetention    time.Duration
	loginAttemptRetention time.Duration
	batchSize             int
}

func NewCleanupHandler(
	repo *auth.Repository,
	logger *observability.Logger,
	cronSecret string,
	tombstoneRetention time.Duration,
	loginAttemptRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		repo:                  repo,
		logger:                logger,
		cronSecret:            strings.TrimSpace(cronSecret),
		tombstoneRetention:    tombstoneRetention,
		loginAttemptRetention: loginAttemptRetention,
		batchSize:             batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		web.Error(w, http.StatusNotFound, "not found")
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		web.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.repo.CleanupStaleAuthData(r.Context(), h.tombstoneRetention, h.loginAttemptRetention, h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		web.Error(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens": result.DeletedRefreshTokens,
		"deleted_login_attempts": result.DeletedLoginAttempts,
	})

	web.JSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}
