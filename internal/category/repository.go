package category

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/apperr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, input Input) (Category, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Category{}, fmt.Errorf("generate category id: %w", err)
	}

	c := Category{ID: id.String(), Name: input.Name}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name)
		VALUES ($1, $2)
	`, c.ID, c.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Category{}, apperr.ErrDuplicateCategory
		}
		return Category{}, fmt.Errorf("insert category: %w", err)
	}

	return c, nil
}

func (r *Repository) ByID(ctx context.Context, id string) (Category, error) {
	var c Category
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name FROM categories WHERE id = $1
	`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, apperr.ErrNotFound
		}
		return Category{}, fmt.Errorf("query category: %w", err)
	}

	return c, nil
}

func (r *Repository) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return categories, nil
}

func (r *Repository) Update(ctx context.Context, id string, input Input) (Category, error) {
	var c Category
	err := r.db.QueryRowContext(ctx, `
		UPDATE categories SET name = $2 WHERE id = $1
		RETURNING id, name
	`, id, input.Name).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, apperr.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Category{}, apperr.ErrDuplicateCategory
		}
		return Category{}, fmt.Errorf("update category: %w", err)
	}

	return c, nil
}

// Delete is restricted while tasks still reference the category.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return apperr.ErrCategoryInUse
		}
		return fmt.Errorf("delete category: %w", err)
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
