package provider_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/clave/internal/cache"
	"github.com/dropDatabas3/clave/internal/oidc/jwks"
	"github.com/dropDatabas3/clave/internal/oidc/metadata"
	"github.com/dropDatabas3/clave/internal/oidc/provider"
	"github.com/dropDatabas3/clave/internal/resilience"
)

// fakeIDP es un provider OIDC completo: discovery, JWKS y token endpoint.
// El id_token que entrega se controla por test.
type fakeIDP struct {
	t    *testing.T
	srv  *httptest.Server
	priv *rsa.PrivateKey

	mu  sync.Mutex
	kid string
	// tokenHits cuenta los POST al token endpoint.
	tokenHits int
	// tokenStatus distinto de 0 fuerza un error HTTP en el exchange.
	tokenStatus int
	// tokenFailures hace fallar con 502 los próximos N exchanges.
	tokenFailures int
	// tokenBody, si no es nil, reemplaza la respuesta del token endpoint.
	tokenBody []byte
	// claims del próximo id_token a emitir.
	claims jwtv5.MapClaims
	// signWith permite firmar con otra clave (firma inválida).
	signWith *rsa.PrivateKey
}

func (f *fakeIDP) setKID(kid string) {
	f.mu.Lock()
	f.kid = kid
	f.mu.Unlock()
}

// configure muta el estado del fake con el lock tomado (los handlers
// corren en goroutines del server).
func (f *fakeIDP) configure(fn func(*fakeIDP)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIDP{t: t, priv: priv, kid: "kid-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(metadata.Endpoints{
			Issuer:        f.srv.URL,
			TokenEndpoint: f.srv.URL + "/token",
			JWKSURI:       f.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		kid := f.kid
		f.mu.Unlock()
		pub := &f.priv.PublicKey
		_ = json.NewEncoder(w).Encode(jwks.Set{Keys: []jwks.Key{{
			Kty: "RSA", Use: "sig", Kid: kid, Alg: "RS256",
			N: base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.NotEmpty(t, r.PostForm.Get("code"))
		require.NotEmpty(t, r.PostForm.Get("client_id"))

		f.mu.Lock()
		f.tokenHits++
		status, body := f.tokenStatus, f.tokenBody
		if f.tokenFailures > 0 {
			f.tokenFailures--
			status = http.StatusBadGateway
		}
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
			return
		}
		if body != nil {
			_, _ = w.Write(body)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ya29.fake",
			"id_token":     f.signIDToken(),
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIDP) signIDToken() string {
	f.mu.Lock()
	claims, kid, key := f.claims, f.kid, f.signWith
	f.mu.Unlock()
	if claims == nil {
		claims = f.defaultClaims()
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tk.Header["kid"] = kid

	if key == nil {
		key = f.priv
	}
	signed, err := tk.SignedString(key)
	require.NoError(f.t, err)
	return signed
}

func (f *fakeIDP) defaultClaims() jwtv5.MapClaims {
	return jwtv5.MapClaims{
		"iss":            f.srv.URL,
		"sub":            "sub-123",
		"aud":            "abc",
		"exp":            time.Now().Add(time.Hour).Unix(),
		"iat":            time.Now().Unix(),
		"email":          "a@b.com",
		"email_verified": true,
		"name":           "Ada",
		"picture":        "https://img.example/ada.png",
	}
}

func (f *fakeIDP) adapter() provider.Adapter {
	caller := resilience.NewCaller(resilience.Config{MaxRetries: 1})
	meta := metadata.NewResolver(metadata.Config{
		Issuers: map[string]string{"google": f.srv.URL},
		Cache:   cache.NewMemory("svc-meta"),
		Caller:  caller,
	})
	keys := jwks.NewResolver(jwks.Config{
		Metadata: meta,
		Cache:    cache.NewMemory("svc-jwks"),
		Caller:   caller,
	})
	creds := provider.Credentials{ClientID: "abc", ClientSecret: "shhh", RedirectURI: "https://app.example/cb"}
	return provider.NewGoogle(creds, meta, keys, nil, caller)
}

func (f *fakeIDP) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenHits
}

func TestGetUserInfo_HappyPath(t *testing.T) {
	f := newFakeIDP(t)
	a := f.adapter()

	id, err := a.GetUserInfo(context.Background(), "auth-code", "state-1")
	require.NoError(t, err)
	require.Equal(t, provider.Google, id.Provider)
	require.Equal(t, "sub-123", id.SocialID)
	require.Equal(t, "a@b.com", id.Email)
	require.Equal(t, "Ada", id.Name)
	require.Equal(t, "https://img.example/ada.png", id.Picture)
}

func TestGetUserInfo_ExchangeRejected(t *testing.T) {
	f := newFakeIDP(t)
	f.configure(func(f *fakeIDP) { f.tokenStatus = http.StatusBadRequest })
	a := f.adapter()

	_, err := a.GetUserInfo(context.Background(), "stale-code", "")
	require.ErrorIs(t, err, provider.ErrTokenExchange)
	// un 4xx es permanente: el code no se vuelve a postear
	require.Equal(t, 1, f.hits())
}

// Una falla transitoria del token endpoint (5xx) se reintenta localmente
// antes de rendirse; el segundo intento completa el login.
func TestGetUserInfo_ExchangeRetriesTransient(t *testing.T) {
	f := newFakeIDP(t)
	f.configure(func(f *fakeIDP) { f.tokenFailures = 1 })
	a := f.adapter()

	id, err := a.GetUserInfo(context.Background(), "auth-code", "")
	require.NoError(t, err)
	require.Equal(t, "a@b.com", id.Email)
	require.Equal(t, 2, f.hits())
}

func TestGetUserInfo_MissingIDToken(t *testing.T) {
	f := newFakeIDP(t)
	f.configure(func(f *fakeIDP) { f.tokenBody = []byte(`{"access_token":"ya29.fake","expires_in":3600}`) })
	a := f.adapter()

	_, err := a.GetUserInfo(context.Background(), "auth-code", "")
	require.ErrorIs(t, err, provider.ErrTokenExchange)
}

func TestGetUserInfo_BadSignature(t *testing.T) {
	f := newFakeIDP(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f.configure(func(f *fakeIDP) { f.signWith = other }) // mismo kid, clave distinta
	a := f.adapter()

	_, err = a.GetUserInfo(context.Background(), "auth-code", "")
	require.ErrorIs(t, err, provider.ErrInvalidIDToken)
	require.Contains(t, err.Error(), "signature")
}

func TestGetUserInfo_KeyRotationRecovers(t *testing.T) {
	f := newFakeIDP(t)
	a := f.adapter()

	// Primer login puebla el cache del JWKS con kid-1.
	_, err := a.GetUserInfo(context.Background(), "auth-code", "")
	require.NoError(t, err)

	// El provider rota su clave: kid nuevo en JWKS y en el id_token.
	// El pipeline se recupera vía el refresh del lookup por kid.
	f.setKID("kid-2")
	_, err = a.GetUserInfo(context.Background(), "auth-code", "")
	require.NoError(t, err)
}

func TestGetUserInfo_ClaimGate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(f *fakeIDP, c jwtv5.MapClaims)
		reason string
	}{
		{"wrong issuer", func(f *fakeIDP, c jwtv5.MapClaims) { c["iss"] = "https://evil.example" }, "invalid issuer"},
		{"wrong audience", func(f *fakeIDP, c jwtv5.MapClaims) { c["aud"] = "not-abc" }, "invalid audience"},
		{"expired", func(f *fakeIDP, c jwtv5.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() }, "expired"},
		{"no email", func(f *fakeIDP, c jwtv5.MapClaims) { delete(c, "email") }, "email not found"},
		{"email not verified", func(f *fakeIDP, c jwtv5.MapClaims) { c["email_verified"] = false }, "email not verified"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeIDP(t)
			claims := f.defaultClaims()
			tc.mutate(f, claims)
			f.configure(func(f *fakeIDP) { f.claims = claims })
			a := f.adapter()

			_, err := a.GetUserInfo(context.Background(), "auth-code", "")
			require.ErrorIs(t, err, provider.ErrInvalidIDToken)
			require.Contains(t, err.Error(), tc.reason)
		})
	}
}

func TestGetUserInfo_AbsentEmailVerifiedAccepted(t *testing.T) {
	f := newFakeIDP(t)
	claims := f.defaultClaims()
	delete(claims, "email_verified")
	f.configure(func(f *fakeIDP) { f.claims = claims })
	a := f.adapter()

	id, err := a.GetUserInfo(context.Background(), "auth-code", "")
	require.NoError(t, err)
	require.Equal(t, "a@b.com", id.Email)
}

func TestRegistry(t *testing.T) {
	f := newFakeIDP(t)
	a := f.adapter()
	reg := provider.NewRegistry(a)

	got, err := reg.Get(provider.Google)
	require.NoError(t, err)
	require.Equal(t, provider.Google, got.Type())

	_, err = reg.Get(provider.Kakao)
	require.ErrorIs(t, err, provider.ErrUnsupported)

	require.ElementsMatch(t, []provider.Type{provider.Google}, reg.Types())
}
