// Package token emite y valida los tokens propios del sistema (access y
// refresh), firmados con HMAC-SHA256. Son distintos del ID token de
// terceros: acá somos el emisor.
package token

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/clave/internal/metrics"
)

var (
	// ErrInvalidSecret indica un secret HMAC demasiado corto.
	// Es fatal al arrancar: nunca se emite con un secret débil.
	ErrInvalidSecret = errors.New("token: jwt secret must be at least 32 bytes")

	// ErrInvalidToken indica un token malformado, vencido o con firma inválida.
	ErrInvalidToken = errors.New("token: invalid")
)

// minSecretLen en bytes para HS256.
const minSecretLen = 32

// Token es un JWT emitido junto con su expiración.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Claims son las claims de un token propio ya verificado por firma.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Config del issuer.
type Config struct {
	Issuer     string
	Audiences  []string
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issuer firma y valida tokens. Sin estado mutable: seguro bajo concurrencia.
type Issuer struct {
	iss        string
	auds       []string
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer crea un Issuer. Falla con ErrInvalidSecret si el secret
// tiene menos de 32 bytes.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < minSecretLen {
		return nil, ErrInvalidSecret
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 7 * 24 * time.Hour
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 365 * 24 * time.Hour
	}
	auds := cfg.Audiences
	if len(auds) == 0 {
		auds = []string{"clave-api"}
	}
	return &Issuer{
		iss:        cfg.Issuer,
		auds:       auds,
		secret:     cfg.Secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// IssueAccess emite un access token para el subject.
func (i *Issuer) IssueAccess(sub string) (Token, error) {
	t, err := i.issue(sub, i.accessTTL)
	if err == nil {
		metrics.TokensIssued.WithLabelValues("access").Inc()
	}
	return t, err
}

// IssueRefresh emite un refresh token para el subject.
func (i *Issuer) IssueRefresh(sub string) (Token, error) {
	t, err := i.issue(sub, i.refreshTTL)
	if err == nil {
		metrics.TokensIssued.WithLabelValues("refresh").Inc()
	}
	return t, err
}

func (i *Issuer) issue(sub string, ttl time.Duration) (Token, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)

	claims := jwtv5.MapClaims{
		"iss": i.iss,
		"sub": sub,
		"aud": i.auds,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Validate verifica firma y expiración. Nunca paniquea: input malformado
// devuelve false.
func (i *Issuer) Validate(token string) bool {
	_, err := i.Subject(token)
	return err == nil
}

// Subject valida el token completo (firma + exp + iss) y devuelve el sub.
func (i *Issuer) Subject(token string) (string, error) {
	c, err := i.Parse(token)
	if err != nil {
		return "", err
	}
	if !c.ExpiresAt.After(time.Now()) {
		return "", fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	if strings.TrimSpace(c.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return c.Subject, nil
}

// Parse verifica SOLO la firma y devuelve las claims. La validación de
// expiración/subject queda en el caller (el refresh service necesita
// distinguir las razones).
func (i *Issuer) Parse(token string) (*Claims, error) {
	tok, err := jwtv5.Parse(token,
		func(t *jwtv5.Token) (any, error) { return i.secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithoutClaimsValidation(),
	)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: signature", ErrInvalidToken)
	}
	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: claims type", ErrInvalidToken)
	}

	c := &Claims{}
	c.Subject, _ = mc["sub"].(string)
	c.Issuer, _ = mc["iss"].(string)
	if f, ok := mc["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(f), 0)
	}
	if f, ok := mc["iat"].(float64); ok {
		c.IssuedAt = time.Unix(int64(f), 0)
	}
	if i.iss != "" && subtle.ConstantTimeCompare([]byte(c.Issuer), []byte(i.iss)) != 1 {
		return nil, fmt.Errorf("%w: issuer", ErrInvalidToken)
	}
	return c, nil
}

// AccessTTL expone el TTL de access (para la respuesta HTTP).
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL expone el TTL de refresh.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }
