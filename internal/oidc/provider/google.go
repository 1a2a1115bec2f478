package provider

import (
	"encoding/json"
	"net/http"

	"github.com/dropDatabas3/clave/internal/oidc/jwks"
	"github.com/dropDatabas3/clave/internal/oidc/metadata"
	"github.com/dropDatabas3/clave/internal/resilience"
)

// googleVendor parsea la respuesta estándar del token endpoint de Google.
type googleVendor struct{}

func (googleVendor) name() Type { return Google }

func (googleVendor) parseTokenResponse(body []byte) (*tokenResponse, error) {
	var v struct {
		AccessToken  string `json:"access_token"`
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token,omitempty"`
		ExpiresIn    int    `json:"expires_in"`
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

// NewGoogle crea el adapter de Google.
func NewGoogle(creds Credentials, meta *metadata.Resolver, keys *jwks.Resolver, hc *http.Client, caller *resilience.Caller) Adapter {
	return newService(googleVendor{}, creds, meta, keys, hc, caller)
}
