package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/clave/internal/domain/repository"
)

type socialRepo struct{ pool *pgxpool.Pool }

const linkCols = `id, user_id, provider, social_id, email, name, picture, is_active, created_at, updated_at`

func scanLink(row pgx.Row) (*repository.SocialAccountLink, error) {
	var l repository.SocialAccountLink
	err := row.Scan(&l.ID, &l.UserID, &l.Provider, &l.SocialID, &l.Email, &l.Name, &l.Picture,
		&l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *socialRepo) GetActive(ctx context.Context, provider, socialID string) (*repository.SocialAccountLink, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+linkCols+` FROM social_account
		WHERE provider = $1 AND social_id = $2 AND is_active`, provider, socialID)
	return scanLink(row)
}

func (r *socialRepo) GetActiveByUser(ctx context.Context, userID, provider string) (*repository.SocialAccountLink, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+linkCols+` FROM social_account
		WHERE user_id = $1 AND provider = $2 AND is_active`, userID, provider)
	return scanLink(row)
}

// Upsert corre en UNA transacción: get-or-create del usuario por email,
// reactivación del link inactivo si lo hay, o insert del link activo.
// La carrera por el unique index parcial (provider, social_id) WHERE
// is_active se resuelve releyendo el link ganador.
func (r *socialRepo) Upsert(ctx context.Context, input repository.UpsertSocialLinkInput) (*repository.SocialAccountLink, bool, error) {
	link, isNew, err := r.upsertTx(ctx, input)
	if err != nil && isUniqueViolation(err) {
		// otro proceso insertó el link activo primero
		winner, rerr := r.GetActive(ctx, input.Provider, input.SocialID)
		if rerr != nil {
			return nil, false, fmt.Errorf("pg: reread after conflict: %w", rerr)
		}
		return winner, false, nil
	}
	return link, isNew, err
}

func (r *socialRepo) upsertTx(ctx context.Context, input repository.UpsertSocialLinkInput) (*repository.SocialAccountLink, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	// get-or-create user por email
	var userID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM app_user WHERE lower(email) = lower($1)`, input.Email).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, `
			INSERT INTO app_user (id, email, name, picture)
			VALUES ($1, lower($2), $3, $4)
			RETURNING id`,
			uuid.NewString(), strings.TrimSpace(input.Email), input.Name, input.Picture).Scan(&userID)
	}
	if err != nil {
		return nil, false, err
	}

	// reactivar link inactivo si existe (política: reactivate in place)
	var linkID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM social_account
		WHERE provider = $1 AND social_id = $2 AND NOT is_active
		ORDER BY updated_at DESC LIMIT 1`,
		input.Provider, input.SocialID).Scan(&linkID)
	switch {
	case err == nil:
		row := tx.QueryRow(ctx, `
			UPDATE social_account
			SET is_active = TRUE, user_id = $2, email = $3, name = $4, picture = $5, updated_at = now()
			WHERE id = $1
			RETURNING `+linkCols,
			linkID, userID, input.Email, input.Name, input.Picture)
		link, err := scanLink(row)
		if err != nil {
			return nil, false, err
		}
		return link, true, tx.Commit(ctx)
	case errors.Is(err, pgx.ErrNoRows):
		row := tx.QueryRow(ctx, `
			INSERT INTO social_account (id, user_id, provider, social_id, email, name, picture, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
			RETURNING `+linkCols,
			uuid.NewString(), userID, input.Provider, input.SocialID, input.Email, input.Name, input.Picture)
		link, err := scanLink(row)
		if err != nil {
			return nil, false, err
		}
		return link, true, tx.Commit(ctx)
	default:
		return nil, false, err
	}
}

func (r *socialRepo) Deactivate(ctx context.Context, linkID string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE social_account SET is_active = FALSE, updated_at = now()
		WHERE id = $1 AND is_active`, linkID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
