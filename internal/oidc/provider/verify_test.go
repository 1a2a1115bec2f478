package provider

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func baseClaims() *Claims {
	return &Claims{
		Issuer:    "https://accounts.google.com",
		Subject:   "sub-123",
		Audiences: []string{"abc"},
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		Email:     "a@b.com",
	}
}

func TestValidateClaims(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name   string
		mutate func(*Claims)
		reason string // "" = pasa
	}{
		{"happy path", func(c *Claims) {}, ""},
		{"email_verified true", func(c *Claims) { c.EmailVerified = boolPtr(true) }, ""},
		{"email_verified absent is accepted", func(c *Claims) { c.EmailVerified = nil }, ""},
		{"wrong issuer", func(c *Claims) { c.Issuer = "https://evil.example" }, "invalid issuer"},
		{"audience without client_id", func(c *Claims) { c.Audiences = []string{"other"} }, "invalid audience"},
		{"empty audiences", func(c *Claims) { c.Audiences = nil }, "invalid audience"},
		{"expired", func(c *Claims) { c.ExpiresAt = now.Add(-time.Minute).Unix() }, "expired"},
		{"exp exactly now", func(c *Claims) { c.ExpiresAt = now.UTC().Unix() }, "expired"},
		{"missing email", func(c *Claims) { c.Email = "" }, "email not found"},
		{"blank email", func(c *Claims) { c.Email = "   " }, "email not found"},
		{"email_verified false", func(c *Claims) { c.EmailVerified = boolPtr(false) }, "email not verified"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := baseClaims()
			tc.mutate(c)
			err := validateClaims(c, "https://accounts.google.com", "abc", now)
			if tc.reason == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidIDToken)
			require.Contains(t, err.Error(), tc.reason)
		})
	}
}

// El gate corta en la primera falla: un token con varios problemas
// reporta el del orden más temprano.
func TestValidateClaims_FirstFailureWins(t *testing.T) {
	c := baseClaims()
	c.Issuer = "https://evil.example"
	c.Email = ""
	c.ExpiresAt = 0

	err := validateClaims(c, "https://accounts.google.com", "abc", time.Now())
	require.ErrorIs(t, err, ErrInvalidIDToken)
	require.Contains(t, err.Error(), "invalid issuer")
}

func TestClaimsFromMap_AudienceForms(t *testing.T) {
	c := claimsFromMap(jwtv5.MapClaims{"aud": "abc"})
	require.Equal(t, []string{"abc"}, c.Audiences)

	c = claimsFromMap(jwtv5.MapClaims{"aud": []any{"abc", "def"}})
	require.Equal(t, []string{"abc", "def"}, c.Audiences)

	c = claimsFromMap(jwtv5.MapClaims{})
	require.Empty(t, c.Audiences)
}

func TestClaimsFromMap_EmailVerified(t *testing.T) {
	c := claimsFromMap(jwtv5.MapClaims{"email_verified": true})
	require.NotNil(t, c.EmailVerified)
	require.True(t, *c.EmailVerified)

	c = claimsFromMap(jwtv5.MapClaims{"email_verified": false})
	require.NotNil(t, c.EmailVerified)
	require.False(t, *c.EmailVerified)

	// Ausente o de tipo raro queda nil.
	c = claimsFromMap(jwtv5.MapClaims{})
	require.Nil(t, c.EmailVerified)
	c = claimsFromMap(jwtv5.MapClaims{"email_verified": "true"})
	require.Nil(t, c.EmailVerified)
}

func TestUnverifiedHeader(t *testing.T) {
	// header {"alg":"RS256","kid":"kid-1"} en base64url
	tok := "eyJhbGciOiJSUzI1NiIsImtpZCI6ImtpZC0xIn0.e30.sig"
	kid, alg, err := unverifiedHeader(tok)
	require.NoError(t, err)
	require.Equal(t, "kid-1", kid)
	require.Equal(t, "RS256", alg)
}

func TestUnverifiedHeader_Malformed(t *testing.T) {
	for _, tok := range []string{"", "a.b", "a.b.c.d", "!!!.e30.sig"} {
		_, _, err := unverifiedHeader(tok)
		require.ErrorIs(t, err, ErrInvalidIDToken, "token %q", tok)
	}
}

func TestUnverifiedHeader_KidMissing(t *testing.T) {
	// header {"alg":"RS256"} sin kid
	tok := "eyJhbGciOiJSUzI1NiJ9.e30.sig"
	_, _, err := unverifiedHeader(tok)
	require.ErrorIs(t, err, ErrInvalidIDToken)
	require.Contains(t, err.Error(), "kid missing")
}

func TestParseType(t *testing.T) {
	p, err := ParseType("google")
	require.NoError(t, err)
	require.Equal(t, Google, p)

	p, err = ParseType("kakao")
	require.NoError(t, err)
	require.Equal(t, Kakao, p)

	_, err = ParseType("naver")
	require.ErrorIs(t, err, ErrUnsupported)
}
