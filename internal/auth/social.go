package auth

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/oidc/provider"
	"github.com/dropDatabas3/clave/internal/token"
)

// SocialLoginService orquesta el login federado completo:
// adapter del provider → identidad verificada → reconciliación → tokens.
type SocialLoginService interface {
	Login(ctx context.Context, p provider.Type, code, state string) (*TokenPair, error)
}

// SocialLoginDeps dependencias del servicio.
type SocialLoginDeps struct {
	Registry  *provider.Registry
	Reconcile ReconcileService
	Tokens    *token.Issuer
}

type socialLoginService struct {
	registry  *provider.Registry
	reconcile ReconcileService
	tokens    *token.Issuer
}

// NewSocialLoginService crea el servicio de login social.
func NewSocialLoginService(d SocialLoginDeps) SocialLoginService {
	return &socialLoginService{registry: d.Registry, reconcile: d.Reconcile, tokens: d.Tokens}
}

func (s *socialLoginService) Login(ctx context.Context, p provider.Type, code, state string) (*TokenPair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.social"), logger.Provider(string(p)))

	adapter, err := s.registry.Get(p)
	if err != nil {
		return nil, err
	}

	identity, err := adapter.GetUserInfo(ctx, code, state)
	if err != nil {
		return nil, err
	}

	link, err := s.reconcile.LinkSocialAccount(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("social login: %w", err)
	}

	pair, err := issuePair(s.tokens, link.Email)
	if err != nil {
		return nil, err
	}
	log.Info("social login ok", logger.UserID(link.UserID))
	return pair, nil
}
