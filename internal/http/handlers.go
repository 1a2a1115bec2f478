package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/clave/internal/audit"
	"github.com/dropDatabas3/clave/internal/auth"
	"github.com/dropDatabas3/clave/internal/domain/repository"
	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/oidc/provider"
	"github.com/dropDatabas3/clave/internal/token"
)

// Handlers agrupa los endpoints de autenticación.
type Handlers struct {
	Credentials auth.CredentialsService
	Social      auth.SocialLoginService
	Refresh     auth.RefreshService
	Reconcile   auth.ReconcileService
	Tokens      *token.Issuer
	Users       repository.UserRepository
}

type signupIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type loginIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type oidcSignupIn struct {
	Provider          string `json:"provider"`
	AuthorizationCode string `json:"authorization_code"`
	State             string `json:"state,omitempty"`
}

type refreshIn struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairOut struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

func pairOut(p *auth.TokenPair) tokenPairOut {
	return tokenPairOut{
		AccessToken:           p.Access.Value,
		RefreshToken:          p.Refresh.Value,
		AccessTokenExpiresAt:  p.Access.ExpiresAt,
		RefreshTokenExpiresAt: p.Refresh.ExpiresAt,
		TokenType:             "Bearer",
	}
}

// HandleSignup — POST /signup
func (h *Handlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in signupIn
	if !ReadJSON(w, r, &in) {
		return
	}
	pair, err := h.Credentials.Signup(r.Context(), in.Email, in.Password, in.Name)
	if err != nil {
		logger.From(r.Context()).Warn("signup rejected", logger.Err(err))
		WriteDomainError(w, err)
		return
	}
	audit.Event(r.Context(), "user.signup", audit.MaskedEmail(in.Email))
	WriteJSON(w, http.StatusCreated, pairOut(pair))
}

// HandleLogin — POST /login
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginIn
	if !ReadJSON(w, r, &in) {
		return
	}
	pair, err := h.Credentials.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		logger.From(r.Context()).Warn("login rejected", logger.Err(err))
		WriteDomainError(w, err)
		return
	}
	audit.Event(r.Context(), "user.login", audit.MaskedEmail(in.Email))
	WriteJSON(w, http.StatusOK, pairOut(pair))
}

// HandleOIDCSignup — POST /oidc/signup
// Recibe el authorization code del front y corre el pipeline completo:
// exchange, verificación del id_token, reconciliación y emisión de tokens.
func (h *Handlers) HandleOIDCSignup(w http.ResponseWriter, r *http.Request) {
	var in oidcSignupIn
	if !ReadJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.AuthorizationCode) == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "authorization_code requerido", 1100)
		return
	}
	p, err := provider.ParseType(in.Provider)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	pair, err := h.Social.Login(r.Context(), p, in.AuthorizationCode, in.State)
	if err != nil {
		logger.From(r.Context()).Warn("oidc signup rejected",
			logger.Provider(in.Provider), logger.Err(err))
		WriteDomainError(w, err)
		return
	}
	audit.Event(r.Context(), "user.social_login", logger.Provider(string(p)))
	WriteJSON(w, http.StatusOK, pairOut(pair))
}

// HandleRefresh — POST /refresh
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in refreshIn
	if !ReadJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.RefreshToken) == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token requerido", 1100)
		return
	}
	pair, err := h.Refresh.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		logger.From(r.Context()).Warn("refresh rejected", logger.Err(err))
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, pairOut(pair))
}

// HandleUnlink — DELETE /oidc/link/{provider}
// Requiere Authorization: Bearer <access_token>; el subject del token
// identifica al usuario dueño del vínculo.
func (h *Handlers) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	p, err := provider.ParseType(chi.URLParam(r, "provider"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if err := h.Reconcile.UnlinkSocialAccount(r.Context(), user.ID, p); err != nil {
		logger.From(r.Context()).Warn("unlink rejected",
			logger.Provider(string(p)), logger.UserID(user.ID), logger.Err(err))
		WriteDomainError(w, err)
		return
	}
	audit.Event(r.Context(), "social.unlink", logger.Provider(string(p)), logger.UserID(user.ID))
	WriteJSON(w, http.StatusOK, map[string]any{"unlinked": true, "provider": string(p)})
}

// currentUser resuelve el usuario ACTIVO detrás del bearer token.
func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) (*repository.User, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		WriteError(w, http.StatusUnauthorized, "invalid_token", "bearer token requerido", 1302)
		return nil, false
	}
	subject, err := h.Tokens.Subject(raw[len(prefix):])
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "invalid_token", "access token inválido", 1302)
		return nil, false
	}
	user, err := h.Users.GetByEmail(r.Context(), subject)
	if err != nil || !user.Active() {
		WriteError(w, http.StatusUnauthorized, "invalid_token", "usuario no activo", 1303)
		return nil, false
	}
	return user, true
}
