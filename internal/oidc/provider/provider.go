// Package provider implementa los adapters OIDC por vendor (Google, Kakao).
//
// El pipeline de verificación es compartido: exchange del authorization
// code, lookup de la clave por kid, verificación criptográfica del ID
// token y gate de claims. Cada vendor solo aporta el parseo de su
// respuesta del token endpoint.
package provider

import (
	"context"
	"errors"
)

// Type identifica un provider soportado.
type Type string

const (
	Google Type = "google"
	Kakao  Type = "kakao"
)

// ParseType valida un provider recibido por la API.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case Google, Kakao:
		return Type(s), nil
	default:
		return "", errors.Join(ErrUnsupported, errors.New("provider "+s))
	}
}

var (
	// ErrUnsupported indica un provider sin adapter registrado.
	ErrUnsupported = errors.New("provider: unsupported")

	// ErrTokenExchange indica que el intercambio del authorization code
	// falló (transporte o error HTTP del provider).
	ErrTokenExchange = errors.New("provider: token exchange failed")

	// ErrInvalidIDToken indica cualquier falla de firma o claims del ID
	// token. La razón se preserva en el mensaje, nunca el token crudo.
	ErrInvalidIDToken = errors.New("provider: invalid id token")
)

// Identity es la identidad externa ya verificada.
// Invariante: solo se construye con email presente y no marcado como
// no-verificado por el provider.
type Identity struct {
	Provider Type
	SocialID string // sub del ID token
	Email    string
	Name     string
	Picture  string
}

// Adapter es el contrato de un provider OIDC.
type Adapter interface {
	// Type devuelve el provider que atiende este adapter.
	Type() Type

	// GetUserInfo intercambia el code y devuelve la identidad verificada.
	GetUserInfo(ctx context.Context, code, state string) (*Identity, error)
}
