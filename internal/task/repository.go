package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

const foreignKeyViolation = "23503"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, ownerID string, input Input) (Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Task{}, fmt.Errorf("generate task id: %w", err)
	}

	t := Task{
		ID:          id.String(),
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
		CreatedAt:   time.Now().UTC(),
		OwnerID:     ownerID,
		CategoryID:  input.CategoryID,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, completed, created_at, owner_id, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.Title, t.Description, t.Completed, t.CreatedAt, t.OwnerID, t.CategoryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return Task{}, apperr.ErrInvalidCategory
		}
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	return t, nil
}

func (r *Repository) ByID(ctx context.Context, id string) (Task, error) {
	var t Task
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, completed, created_at, owner_id, category_id
		FROM tasks
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.OwnerID, &t.CategoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, apperr.ErrNotFound
		}
		return Task{}, fmt.Errorf("query task: %w", err)
	}

	return t, nil
}

// ListByOwner returns the owner's tasks, newest first, optionally filtered by
// completion state. Listing is never cross-owner.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string, completed *bool) ([]Task, error) {
	query := `
		SELECT id, title, description, completed, created_at, owner_id, category_id
		FROM tasks
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`
	args := []any{ownerID}
	if completed != nil {
		query = `
			SELECT id, title, description, completed, created_at, owner_id, category_id
			FROM tasks
			WHERE owner_id = $1 AND completed = $2
			ORDER BY created_at DESC
		`
		args = append(args, *completed)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.OwnerID, &t.CategoryID); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

// Update rewrites the client-writable fields. OwnerID and CreatedAt never change.
func (r *Repository) Update(ctx context.Context, id string, input Input) (Task, error) {
	var t Task
	err := r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, completed = $4, category_id = $5
		WHERE id = $1
		RETURNING id, title, description, completed, created_at, owner_id, category_id
	`, id, input.Title, input.Description, input.Completed, input.CategoryID).
		Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.OwnerID, &t.CategoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, apperr.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return Task{}, apperr.ErrInvalidCategory
		}
		return Task{}, fmt.Errorf("update task: %w", err)
	}

	return t, nil
}

func (r *Repository) SetCompleted(ctx context.Context, id string, completed bool) (Task, error) {
	var t Task
	err := r.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET completed = $2
		WHERE id = $1
		RETURNING id, title, description, completed, created_at, owner_id, category_id
	`, id, completed).
		Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.OwnerID, &t.CategoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, apperr.ErrNotFound
		}
		return Task{}, fmt.Errorf("toggle task: %w", err)
	}

	return t, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.ErrNotFound
	}

	return nil
}
