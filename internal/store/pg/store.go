// Package pg implementa los puertos de repository sobre Postgres (pgx).
package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/clave/internal/domain/repository"
)

// Store agrupa los repositorios sobre un pool compartido.
type Store struct{ pool *pgxpool.Pool }

// New crea el Store y verifica la conexión.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Users devuelve el repositorio de usuarios.
func (s *Store) Users() repository.UserRepository { return &userRepo{pool: s.pool} }

// Social devuelve el repositorio de links sociales.
func (s *Store) Social() repository.SocialAccountRepository {
	return &socialRepo{pool: s.pool}
}

// Close cierra el pool (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Migrate aplica las migraciones embebidas en orden lexicográfico.
// Idempotente: los .sql usan IF NOT EXISTS.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > 4 && e.Name()[len(e.Name())-4:] == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := fs.ReadFile(fsys, n)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("pg: migrate %s: %w", n, err)
		}
	}
	return nil
}

// isUniqueViolation detecta el código 23505 de postgres.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
