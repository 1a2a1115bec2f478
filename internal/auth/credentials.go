package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/clave/internal/domain/repository"
	"github.com/dropDatabas3/clave/internal/email"
	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/security/password"
	"github.com/dropDatabas3/clave/internal/token"
)

// CredentialsService maneja signup/login por email y password.
type CredentialsService interface {
	// Signup crea el usuario y emite el par de tokens.
	// Retorna repository.ErrConflict si el email ya existe.
	Signup(ctx context.Context, email, plain, name string) (*TokenPair, error)

	// Login valida credenciales y emite el par de tokens.
	Login(ctx context.Context, email, plain string) (*TokenPair, error)
}

// CredentialsDeps dependencias del servicio.
type CredentialsDeps struct {
	Users  repository.UserRepository
	Hasher password.Hasher
	Tokens *token.Issuer
	Mailer email.Sender
}

type credentialsService struct {
	users  repository.UserRepository
	hasher password.Hasher
	tokens *token.Issuer
	mailer email.Sender
}

// NewCredentialsService crea el servicio de credenciales.
func NewCredentialsService(d CredentialsDeps) CredentialsService {
	m := d.Mailer
	if m == nil {
		m = email.NopSender{}
	}
	return &credentialsService{users: d.Users, hasher: d.Hasher, tokens: d.Tokens, mailer: m}
}

func (s *credentialsService) Signup(ctx context.Context, em, plain, name string) (*TokenPair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.credentials"))

	em = strings.ToLower(strings.TrimSpace(em))
	if em == "" || !strings.Contains(em, "@") {
		return nil, fmt.Errorf("%w: email", repository.ErrInvalidInput)
	}
	if len(plain) < 8 {
		return nil, fmt.Errorf("%w: password demasiado corta", repository.ErrInvalidInput)
	}

	phc, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("signup: hash: %w", err)
	}

	user, err := s.users.Create(ctx, repository.CreateUserInput{
		Email:        em,
		Name:         name,
		PasswordHash: phc,
	})
	if err != nil {
		return nil, err
	}

	// best-effort: el signup no depende del SMTP
	if err := s.mailer.SendWelcome(user.Email, user.Name); err != nil {
		log.Warn("welcome email failed", logger.Email(user.Email), logger.Err(err))
	}

	log.Info("user signed up", logger.UserID(user.ID))
	return issuePair(s.tokens, user.Email)
}

func (s *credentialsService) Login(ctx context.Context, em, plain string) (*TokenPair, error) {
	em = strings.ToLower(strings.TrimSpace(em))

	user, err := s.users.GetByEmail(ctx, em)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: lookup: %w", err)
	}
	if !user.Active() || user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(plain, *user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return issuePair(s.tokens, user.Email)
}
