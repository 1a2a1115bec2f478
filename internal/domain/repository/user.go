package repository

import (
	"context"
	"time"
)

// User representa un usuario del sistema.
type User struct {
	ID           string
	Email        string
	Name         string
	Picture      string
	PasswordHash *string // nil para usuarios solo-social
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time // soft delete; nil = activo
}

// Active indica si el usuario sigue habilitado.
func (u *User) Active() bool { return u != nil && u.DeletedAt == nil }

// CreateUserInput contiene los datos para crear un usuario.
type CreateUserInput struct {
	Email        string
	Name         string
	Picture      string
	PasswordHash string // vacío para signup social
}

// UserRepository define operaciones sobre usuarios.
// Es el puerto que consume el core; la implementación concreta
// (postgres, memory) vive en internal/store.
type UserRepository interface {
	// GetByEmail busca un usuario por email. Retorna ErrNotFound si no existe.
	// Incluye usuarios soft-deleted; el caller decide según DeletedAt.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID busca un usuario por ID. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, userID string) (*User, error)

	// Create crea un usuario nuevo. Retorna ErrConflict si el email ya existe.
	Create(ctx context.Context, input CreateUserInput) (*User, error)

	// GetOrCreate busca por email y crea si no existe.
	GetOrCreate(ctx context.Context, input CreateUserInput) (*User, error)

	// SoftDelete marca el usuario como eliminado (DeletedAt = now).
	SoftDelete(ctx context.Context, userID string) error
}
