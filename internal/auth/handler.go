package auth

import (
	"net/http"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/web"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !web.DecodeJSON(w, r, &body) {
		return
	}

	user, err := h.service.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusCreated, map[string]string{"userId": user.ID})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !web.DecodeJSON(w, r, &body) {
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		web.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.service.CurrentUser(r.Context(), identity)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, map[string]string{
		"id":       user.ID,
		"username": user.Username,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !web.DecodeJSON(w, r, &body) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, tokens)
}

// ValidateToken only ever runs behind the auth middleware; reaching it means
// the bearer token verified.
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body logoutRequest
	if !web.DecodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		web.Fail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
