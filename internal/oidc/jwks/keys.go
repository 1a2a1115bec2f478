package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// ErrInvalidKey indica que la clave no tiene el material necesario
// para construir una RSA pública (modulus/exponent ausentes).
var ErrInvalidKey = errors.New("jwks: invalid key material")

// Key es una signing key publicada en el JWKS del provider.
type Key struct {
	Kty string   `json:"kty"`
	Use string   `json:"use,omitempty"`
	Kid string   `json:"kid,omitempty"`
	Alg string   `json:"alg,omitempty"`
	N   string   `json:"n,omitempty"` // modulus, base64url
	E   string   `json:"e,omitempty"` // exponent, base64url
	X5c []string `json:"x5c,omitempty"`
}

// Set es el JWKS completo de un provider.
type Set struct {
	Keys []Key `json:"keys"`
}

// Matches aplica la regla de matching de claves, en orden:
// kty debe ser RSA, kid debe coincidir exacto, use (si viene) debe ser
// "sig", y si caller y key declaran alg, deben coincidir.
func (k *Key) Matches(kid, alg string) bool {
	if k.Kty != "RSA" {
		return false
	}
	if k.Kid != kid {
		return false
	}
	if k.Use != "" && k.Use != "sig" {
		return false
	}
	if alg != "" && k.Alg != "" && k.Alg != alg {
		return false
	}
	return true
}

// PublicKey construye la RSA pública a partir de la key.
// Retorna ErrInvalidKey si falta modulus o exponent.
func PublicKey(k *Key) (*rsa.PublicKey, error) {
	if k == nil || k.N == "" || k.E == "" {
		return nil, ErrInvalidKey
	}
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("%w: modulus: %v", ErrInvalidKey, err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("%w: exponent: %v", ErrInvalidKey, err)
	}
	if len(nb) == 0 || len(eb) == 0 {
		return nil, ErrInvalidKey
	}
	e := 0
	for _, b := range eb {
		e = (e << 8) | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
