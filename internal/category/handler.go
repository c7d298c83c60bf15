package category

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/web"
)

type Store interface {
	Create(ctx context.Context, input Input) (Category, error)
	ByID(ctx context.Context, id string) (Category, error)
	List(ctx context.Context) ([]Category, error)
	Update(ctx context.Context, id string, input Input) (Category, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var input Input
	if !web.DecodeJSON(w, r, &input) {
		return
	}
	if err := input.Validate(); err != nil {
		web.Fail(w, err)
		return
	}

	c, err := h.store.Create(r.Context(), input)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusCreated, c)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.List(r.Context())
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, categories)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	c, err := h.store.ByID(r.Context(), id)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var input Input
	if !web.DecodeJSON(w, r, &input) {
		return
	}
	if err := input.Validate(); err != nil {
		web.Fail(w, err)
		return
	}

	c, err := h.store.Update(r.Context(), id, input)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		web.Fail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		web.Fail(w, apperr.ErrNotFound)
		return "", false
	}
	return id, true
}
