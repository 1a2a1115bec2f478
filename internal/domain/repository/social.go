package repository

import (
	"context"
	"time"
)

// SocialAccountLink representa la vinculación de un usuario con una
// identidad externa (Google, Kakao, ...).
// Invariante: (provider, social_id) es único entre links activos.
type SocialAccountLink struct {
	ID        string
	UserID    string
	Provider  string // "google", "kakao"
	SocialID  string // sub del provider
	Email     string
	Name      string
	Picture   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertSocialLinkInput contiene los datos verificados del provider para
// crear o reactivar un link.
type UpsertSocialLinkInput struct {
	Provider string
	SocialID string
	Email    string
	Name     string
	Picture  string
}

// SocialAccountRepository define operaciones sobre links sociales.
type SocialAccountRepository interface {
	// GetActive busca el link activo por (provider, social_id).
	// Retorna ErrNotFound si no existe.
	GetActive(ctx context.Context, provider, socialID string) (*SocialAccountLink, error)

	// GetActiveByUser busca el link activo por (user_id, provider).
	// Retorna ErrNotFound si no existe.
	GetActiveByUser(ctx context.Context, userID, provider string) (*SocialAccountLink, error)

	// Upsert crea el link activo en una sola transacción: si no existe
	// usuario con ese email lo crea, si hay un link inactivo para
	// (provider, social_id) lo reactiva actualizando los datos de perfil.
	// Si otro proceso ganó la carrera por el unique index, relee y
	// devuelve el link ganador (isNew=false).
	Upsert(ctx context.Context, input UpsertSocialLinkInput) (link *SocialAccountLink, isNew bool, err error)

	// Deactivate marca is_active=false. Retorna ErrNotFound si el link
	// no existe o ya estaba inactivo.
	Deactivate(ctx context.Context, linkID string) error
}
