package provider

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/clave/internal/oidc/jwks"
	"github.com/dropDatabas3/clave/internal/oidc/metadata"
	"github.com/dropDatabas3/clave/internal/resilience"
)

// kakaoVendor parsea la respuesta del token endpoint de Kakao.
// Kakao agrega campos propios (token_type "bearer" en minúscula,
// refresh_token_expires_in, scope) pero el id_token es OIDC estándar.
type kakaoVendor struct{}

func (kakaoVendor) name() Type { return Kakao }

func (kakaoVendor) parseTokenResponse(body []byte) (*tokenResponse, error) {
	var v struct {
		AccessToken           string `json:"access_token"`
		IDToken               string `json:"id_token"`
		RefreshToken          string `json:"refresh_token,omitempty"`
		ExpiresIn             int    `json:"expires_in"`
		RefreshTokenExpiresIn int    `json:"refresh_token_expires_in,omitempty"`
		Scope                 string `json:"scope,omitempty"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken:  v.AccessToken,
		IDToken:      v.IDToken,
		RefreshToken: v.RefreshToken,
		ExpiresIn:    v.ExpiresIn,
	}, nil
}

// NewKakao crea el adapter de Kakao.
func NewKakao(creds Credentials, meta *metadata.Resolver, keys *jwks.Resolver, hc *http.Client, caller *resilience.Caller) Adapter {
	return newService(kakaoVendor{}, creds, meta, keys, hc, caller)
}
