package task

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/auth"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/web"
)

// Store is the persistence surface the handlers need. *Repository implements
// it; tests use an in-memory fake.
type Store interface {
	Create(ctx context.Context, ownerID string, input Input) (Task, error)
	ByID(ctx context.Context, id string) (Task, error)
	ListByOwner(ctx context.Context, ownerID string, completed *bool) ([]Task, error)
	Update(ctx context.Context, id string, input Input) (Task, error)
	SetCompleted(ctx context.Context, id string, completed bool) (Task, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// ownedTask loads a task by raw id and enforces the ownership invariant: a
// task looked up by id alone says nothing about who may touch it. An existing
// task owned by someone else is Forbidden, not NotFound, so logs can tell the
// two apart.
func (h *Handler) ownedTask(r *http.Request) (Task, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return Task{}, apperr.ErrForbidden
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		return Task{}, apperr.ErrNotFound
	}

	t, err := h.store.ByID(r.Context(), id)
	if err != nil {
		return Task{}, err
	}
	if t.OwnerID != identity.ID {
		return Task{}, apperr.ErrForbidden
	}

	return t, nil
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		web.Error(w, http.StatusUnauthorized, "not authenticated")
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

	t, err := h.store.Create(r.Context(), identity.ID, input)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusCreated, t)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		web.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var completed *bool
	if raw := r.URL.Query().Get("completed"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			web.Fail(w, apperr.Invalid(map[string]string{"completed": "must be true or false"}))
			return
		}
		completed = &value
	}

	tasks, err := h.store.ListByOwner(r.Context(), identity.ID, completed)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, tasks)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.ownedTask(r)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, t)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	t, err := h.ownedTask(r)
	if err != nil {
		web.Fail(w, err)
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

	updated, err := h.store.Update(r.Context(), t.ID, input)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, updated)
}

func (h *Handler) ToggleComplete(w http.ResponseWriter, r *http.Request) {
	t, err := h.ownedTask(r)
	if err != nil {
		web.Fail(w, err)
		return
	}

	toggled, err := h.store.SetCompleted(r.Context(), t.ID, !t.Completed)
	if err != nil {
		web.Fail(w, err)
		return
	}

	web.JSON(w, http.StatusOK, toggled)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	t, err := h.ownedTask(r)
	if err != nil {
		web.Fail(w, err)
		return
	}

	if err := h.store.Delete(r.Context(), t.ID); err != nil {
		web.Fail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
