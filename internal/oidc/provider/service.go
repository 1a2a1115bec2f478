package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/clave/internal/metrics"
	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/oidc/jwks"
	"github.com/dropDatabas3/clave/internal/oidc/metadata"
	"github.com/dropDatabas3/clave/internal/resilience"
)

// tokenResponse es la respuesta normalizada del token endpoint.
// Cada vendor la produce desde su formato propio.
type tokenResponse struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int
}

// vendor es el punto de extensión por provider: solo el parseo de la
// respuesta del token endpoint difiere entre vendors.
type vendor interface {
	name() Type
	parseTokenResponse(body []byte) (*tokenResponse, error)
}

// Credentials del client registrado ante el provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// service implementa Adapter con el pipeline compartido.
type service struct {
	v      vendor
	creds  Credentials
	meta   *metadata.Resolver
	keys   *jwks.Resolver
	http   *http.Client
	caller *resilience.Caller
}

func newService(v vendor, creds Credentials, meta *metadata.Resolver, keys *jwks.Resolver, hc *http.Client, caller *resilience.Caller) *service {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if caller == nil {
		caller = resilience.NewCaller(resilience.Config{})
	}
	return &service{v: v, creds: creds, meta: meta, keys: keys, http: hc, caller: caller}
}

func (s *service) Type() Type { return s.v.name() }

// GetUserInfo ejecuta el pipeline completo:
// exchange → header no verificado → clave por kid → firma → claims → identidad.
func (s *service) GetUserInfo(ctx context.Context, code, state string) (*Identity, error) {
	p := string(s.v.name())
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("oidc.provider"), logger.Provider(p))
	start := time.Now()

	ep, err := s.meta.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	tr, err := s.exchangeCode(ctx, ep.TokenEndpoint, code)
	if err != nil {
		log.Warn("code exchange failed", logger.Err(err))
		return nil, err
	}
	if tr.IDToken == "" {
		return nil, fmt.Errorf("%w: respuesta sin id_token", ErrTokenExchange)
	}

	kid, alg, err := unverifiedHeader(tr.IDToken)
	if err != nil {
		metrics.IDTokenValidations.WithLabelValues(p, "error").Inc()
		return nil, err
	}

	key, err := s.keys.FindKeyByKID(ctx, p, kid, alg)
	if err != nil {
		return nil, err
	}
	if key == nil {
		metrics.IDTokenValidations.WithLabelValues(p, "error").Inc()
		return nil, fmt.Errorf("%w: unknown kid", ErrInvalidIDToken)
	}
	pub, err := jwks.PublicKey(key)
	if err != nil {
		metrics.IDTokenValidations.WithLabelValues(p, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	claims, err := parseAndVerify(tr.IDToken, pub)
	if err != nil {
		metrics.IDTokenValidations.WithLabelValues(p, "error").Inc()
		return nil, err
	}

	if err := validateClaims(claims, ep.Issuer, s.creds.ClientID, time.Now()); err != nil {
		metrics.IDTokenValidations.WithLabelValues(p, "error").Inc()
		log.Warn("claim validation failed", logger.Err(err))
		return nil, err
	}
	metrics.IDTokenValidations.WithLabelValues(p, "ok").Inc()
	metrics.LoginDuration.WithLabelValues(p).Observe(time.Since(start).Seconds())

	return &Identity{
		Provider: s.v.name(),
		SocialID: claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Picture:  claims.Picture,
	}, nil
}

// exchangeCode hace el POST form-encoded al token endpoint del vendor,
// con retry acotado para fallas transitorias (transporte, 5xx) y breaker
// por provider. Un 4xx es permanente: un code inválido o ya usado nunca
// se re-postea. Cualquier fallo final mapea a ErrTokenExchange, salvo el
// breaker abierto que conserva ErrCircuitOpen.
func (s *service) exchangeCode(ctx context.Context, tokenEndpoint, code string) (*tokenResponse, error) {
	p := string(s.v.name())
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", s.creds.ClientID)
	form.Set("client_secret", s.creds.ClientSecret)
	form.Set("redirect_uri", s.creds.RedirectURI)

	body, err := s.caller.Do(ctx, "exchange:"+p, func(ctx context.Context) ([]byte, error) {
		return postForm(ctx, s.http, tokenEndpoint, form.Encode())
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("provider: token exchange for %q: %w", p, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	tr, err := s.v.parseTokenResponse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	return tr, nil
}

// postForm clasifica errores para el retry: 5xx/429 y errores de
// transporte son transitorios, el resto es permanente.
func postForm(ctx context.Context, hc *http.Client, endpoint, form string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode/100 == 2:
		return body, nil
	case resp.StatusCode/100 == 5 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("http %d %s", resp.StatusCode, oauthErrorDetail(body))
	default:
		return nil, backoff.Permanent(fmt.Errorf("http %d %s", resp.StatusCode, oauthErrorDetail(body)))
	}
}

func oauthErrorDetail(body []byte) string {
	var e struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &e)
	return strings.TrimSpace(e.Error + " " + e.ErrorDescription)
}

// unverifiedHeader decodifica el header del JWT sin verificar la firma,
// solo para obtener kid/alg y elegir la clave.
func unverifiedHeader(idToken string) (kid, alg string, err error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("%w: malformed jwt", ErrInvalidIDToken)
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", "", fmt.Errorf("%w: header: %v", ErrInvalidIDToken, err)
	}
	var h struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(hb, &h); err != nil {
		return "", "", fmt.Errorf("%w: header: %v", ErrInvalidIDToken, err)
	}
	if h.Kid == "" {
		return "", "", fmt.Errorf("%w: kid missing", ErrInvalidIDToken)
	}
	return h.Kid, h.Alg, nil
}

// parseAndVerify verifica la firma RS256 contra la pública y devuelve
// las claims crudas. La validación de claims corre aparte (validateClaims)
// para producir razones específicas.
func parseAndVerify(idToken string, pub any) (*Claims, error) {
	tok, err := jwtv5.Parse(idToken,
		func(t *jwtv5.Token) (any, error) { return pub, nil },
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithoutClaimsValidation(),
	)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: signature", ErrInvalidIDToken)
	}
	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: claims type", ErrInvalidIDToken)
	}
	return claimsFromMap(mc), nil
}
