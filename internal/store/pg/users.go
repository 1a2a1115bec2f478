package pg

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/clave/internal/domain/repository"
)

type userRepo struct{ pool *pgxpool.Pool }

const userCols = `id, email, name, picture, password_hash, created_at, updated_at, deleted_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM app_user WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

func (r *userRepo) GetByID(ctx context.Context, userID string) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM app_user WHERE id = $1`, userID)
	return scanUser(row)
}

func (r *userRepo) Create(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	var hash *string
	if input.PasswordHash != "" {
		hash = &input.PasswordHash
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO app_user (id, email, name, picture, password_hash)
		VALUES ($1, lower($2), $3, $4, $5)
		RETURNING `+userCols,
		uuid.NewString(), strings.TrimSpace(input.Email), input.Name, input.Picture, hash)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return u, nil
}

func (r *userRepo) GetOrCreate(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	u, err := r.GetByEmail(ctx, input.Email)
	if err == nil {
		return u, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	u, err = r.Create(ctx, input)
	if repository.IsConflict(err) {
		// otro proceso ganó la carrera: releer
		return r.GetByEmail(ctx, input.Email)
	}
	return u, err
}

func (r *userRepo) SoftDelete(ctx context.Context, userID string) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE app_user SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
