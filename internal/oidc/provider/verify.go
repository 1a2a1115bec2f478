package provider

import (
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Claims son las claims relevantes del ID token externo.
// Transientes: se producen por verificación y no se persisten.
type Claims struct {
	Issuer    string
	Subject   string
	Audiences []string
	ExpiresAt int64 // epoch seconds
	IssuedAt  int64
	Email     string
	// EmailVerified es nil cuando el provider no mandó la claim.
	EmailVerified *bool
	Name          string
	Picture       string
}

func claimsFromMap(mc jwtv5.MapClaims) *Claims {
	c := &Claims{
		Issuer:  strClaim(mc, "iss"),
		Subject: strClaim(mc, "sub"),
		Email:   strClaim(mc, "email"),
		Name:    strClaim(mc, "name"),
		Picture: strClaim(mc, "picture"),
	}
	switch a := mc["aud"].(type) {
	case string:
		c.Audiences = []string{a}
	case []any:
		for _, v := range a {
			if s, ok := v.(string); ok {
				c.Audiences = append(c.Audiences, s)
			}
		}
	}
	if f, ok := mc["exp"].(float64); ok {
		c.ExpiresAt = int64(f)
	}
	if f, ok := mc["iat"].(float64); ok {
		c.IssuedAt = int64(f)
	}
	if b, ok := mc["email_verified"].(bool); ok {
		c.EmailVerified = &b
	}
	return c
}

// validateClaims es el gate secuencial de claims: corta en la primera
// falla y siempre reporta ErrInvalidIDToken con la razón.
//
// Orden: issuer → audience → expiry → email presente → email_verified.
// email_verified ausente se acepta (default deliberadamente laxo: varios
// providers no mandan la claim y el email ya viene del ID token firmado).
func validateClaims(c *Claims, issuer, clientID string, now time.Time) error {
	if c.Issuer != issuer {
		return fmt.Errorf("%w: invalid issuer", ErrInvalidIDToken)
	}
	if !contains(c.Audiences, clientID) {
		return fmt.Errorf("%w: invalid audience", ErrInvalidIDToken)
	}
	if c.ExpiresAt <= now.UTC().Unix() {
		return fmt.Errorf("%w: expired", ErrInvalidIDToken)
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: email not found", ErrInvalidIDToken)
	}
	if c.EmailVerified != nil && !*c.EmailVerified {
		return fmt.Errorf("%w: email not verified", ErrInvalidIDToken)
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func strClaim(m jwtv5.MapClaims, k string) string {
	s, _ := m[k].(string)
	return s
}
