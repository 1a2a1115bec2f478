// Package auth contiene los servicios de negocio: reconciliación de
// cuentas sociales, login social, credenciales password y refresh.
package auth

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/clave/internal/domain/repository"
	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/oidc/provider"
)

// ReconcileService vincula identidades externas verificadas con usuarios
// locales, de forma idempotente.
type ReconcileService interface {
	// LinkSocialAccount busca el link activo por (provider, social_id);
	// si existe lo devuelve sin tocar nada. Si no, crea (o reutiliza por
	// email) el usuario local y crea el link activo, todo atómico.
	LinkSocialAccount(ctx context.Context, identity *provider.Identity) (*repository.SocialAccountLink, error)

	// UnlinkSocialAccount desactiva el link activo de (user, provider).
	// Retorna ErrNoActiveLink si no existe.
	UnlinkSocialAccount(ctx context.Context, userID string, p provider.Type) error
}

// ReconcileDeps dependencias del servicio.
type ReconcileDeps struct {
	Users  repository.UserRepository
	Social repository.SocialAccountRepository
}

type reconcileService struct {
	users  repository.UserRepository
	social repository.SocialAccountRepository
}

// NewReconcileService crea el servicio de reconciliación.
func NewReconcileService(d ReconcileDeps) ReconcileService {
	return &reconcileService{users: d.Users, social: d.Social}
}

func (s *reconcileService) LinkSocialAccount(ctx context.Context, identity *provider.Identity) (*repository.SocialAccountLink, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.reconcile"),
		logger.Provider(string(identity.Provider)))

	// Camino idempotente: link activo existente se devuelve tal cual,
	// sin crear usuario ni reactivar nada.
	link, err := s.social.GetActive(ctx, string(identity.Provider), identity.SocialID)
	if err == nil {
		return link, nil
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("reconcile: lookup link: %w", err)
	}

	// El store resuelve get-or-create de usuario + insert/reactivate del
	// link en una transacción; las carreras por el unique index terminan
	// releyendo el link ganador.
	link, isNew, err := s.social.Upsert(ctx, repository.UpsertSocialLinkInput{
		Provider: string(identity.Provider),
		SocialID: identity.SocialID,
		Email:    identity.Email,
		Name:     identity.Name,
		Picture:  identity.Picture,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: upsert link: %w", err)
	}
	if isNew {
		log.Info("social account linked", logger.UserID(link.UserID))
	}
	return link, nil
}

func (s *reconcileService) UnlinkSocialAccount(ctx context.Context, userID string, p provider.Type) error {
	link, err := s.social.GetActiveByUser(ctx, userID, string(p))
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrNoActiveLink
		}
		return fmt.Errorf("reconcile: lookup link: %w", err)
	}
	if err := s.social.Deactivate(ctx, link.ID); err != nil {
		if repository.IsNotFound(err) {
			return ErrNoActiveLink
		}
		return fmt.Errorf("reconcile: deactivate link: %w", err)
	}
	logger.From(ctx).Info("social account unlinked",
		logger.Component("auth.reconcile"), logger.UserID(userID), logger.Provider(string(p)))
	return nil
}
