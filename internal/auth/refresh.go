package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/clave/internal/domain/repository"
	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/token"
)

// TokenPair es el envelope de tokens propios que devuelve el sistema.
type TokenPair struct {
	Access  token.Token
	Refresh token.Token
}

// RefreshService valida un refresh token y re-emite un par nuevo.
type RefreshService interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}

// RefreshDeps dependencias del servicio.
type RefreshDeps struct {
	Tokens *token.Issuer
	Users  repository.UserRepository
}

type refreshService struct {
	tokens *token.Issuer
	users  repository.UserRepository
}

// NewRefreshService crea el servicio de refresh.
func NewRefreshService(d RefreshDeps) RefreshService {
	return &refreshService{tokens: d.Tokens, users: d.Users}
}

// Refresh valida firma, expiración y subject del refresh token, re-resuelve
// el subject a un usuario ACTIVO y emite el par nuevo. El refresh viejo no
// se revoca: expira solo (decisión registrada en DESIGN.md).
func (s *refreshService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.refresh"))

	claims, err := s.tokens.Parse(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: signature", ErrInvalidRefreshToken)
	}
	if !claims.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidRefreshToken)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidRefreshToken)
	}

	// Refresh de una cuenta desactivada no emite tokens.
	user, err := s.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFoundActiveUser
		}
		return nil, fmt.Errorf("refresh: lookup user: %w", err)
	}
	if !user.Active() {
		return nil, ErrNotFoundActiveUser
	}

	pair, err := issuePair(s.tokens, claims.Subject)
	if err != nil {
		return nil, err
	}
	log.Debug("token pair refreshed", logger.UserID(user.ID))
	return pair, nil
}

func issuePair(issuer *token.Issuer, sub string) (*TokenPair, error) {
	access, err := issuer.IssueAccess(sub)
	if err != nil {
		return nil, fmt.Errorf("issue access: %w", err)
	}
	refresh, err := issuer.IssueRefresh(sub)
	if err != nil {
		return nil, fmt.Errorf("issue refresh: %w", err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}
