// Package metadata resuelve y cachea el discovery document OIDC
// (.well-known/openid-configuration) de cada provider configurado.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/clave/internal/cache"
	"github.com/dropDatabas3/clave/internal/metrics"
	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/resilience"
)

// ErrNotConfigured indica que el provider no tiene issuer configurado.
// Es un error de configuración, no de runtime: mapea a 5xx.
var ErrNotConfigured = errors.New("metadata: provider not configured")

// DefaultTTL del discovery document en cache.
const DefaultTTL = 24 * time.Hour

// Endpoints es el discovery document del provider. Inmutable una vez fetcheado.
type Endpoints struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri"`
}

// Config del resolver.
type Config struct {
	// Issuers mapea provider -> issuer URI.
	Issuers map[string]string
	Cache   cache.Client
	Caller  *resilience.Caller
	// HTTPClient opcional; default con timeout de 10s.
	HTTPClient *http.Client
	// TTL opcional; default DefaultTTL.
	TTL time.Duration
}

// Resolver fetchea y cachea discovery documents, keyed por provider.
// Los misses concurrentes para el mismo provider se coalescen con
// singleflight: un solo fetch contra la red.
type Resolver struct {
	issuers map[string]string
	cache   cache.Client
	caller  *resilience.Caller
	http    *http.Client
	ttl     time.Duration
	sf      singleflight.Group
}

// NewResolver crea un Resolver.
func NewResolver(cfg Config) *Resolver {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := cfg.Cache
	if c == nil {
		c = cache.NewMemory("")
	}
	return &Resolver{
		issuers: cfg.Issuers,
		cache:   c,
		caller:  cfg.Caller,
		http:    hc,
		ttl:     ttl,
	}
}

func cacheKey(provider string) string { return "oidc:meta:" + provider }

// Resolve devuelve los endpoints del provider, del cache si están frescos.
// Un miss dispara exactamente un fetch aunque haya N callers concurrentes.
func (r *Resolver) Resolve(ctx context.Context, provider string) (*Endpoints, error) {
	if _, ok := r.issuers[provider]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotConfigured, provider)
	}

	if b, err := r.cache.Get(ctx, cacheKey(provider)); err == nil {
		var ep Endpoints
		if json.Unmarshal(b, &ep) == nil {
			metrics.MetadataCacheHits.WithLabelValues(provider).Inc()
			return &ep, nil
		}
		// entrada corrupta: se pisa con un refresh
	}
	metrics.MetadataCacheMisses.WithLabelValues(provider).Inc()

	// El vuelo corre sin la cancelación del caller que lo ganó: si ese
	// caller se va, los coalescidos igual reciben el resultado.
	fctx := context.WithoutCancel(ctx)
	v, err, _ := r.sf.Do(provider, func() (any, error) {
		// double-check: otro caller pudo haber poblado el cache
		if b, err := r.cache.Get(fctx, cacheKey(provider)); err == nil {
			var ep Endpoints
			if json.Unmarshal(b, &ep) == nil {
				return &ep, nil
			}
		}
		return r.fetchAndStore(fctx, provider)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Endpoints), nil
}

// Refresh fuerza un re-fetch y reemplaza la entrada del cache.
func (r *Resolver) Refresh(ctx context.Context, provider string) (*Endpoints, error) {
	if _, ok := r.issuers[provider]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotConfigured, provider)
	}
	return r.fetchAndStore(ctx, provider)
}

// Providers devuelve los providers configurados (para el warmup).
func (r *Resolver) Providers() []string {
	out := make([]string, 0, len(r.issuers))
	for p := range r.issuers {
		out = append(out, p)
	}
	return out
}

func (r *Resolver) fetchAndStore(ctx context.Context, provider string) (*Endpoints, error) {
	issuer := r.issuers[provider]
	url := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"

	body, err := r.caller.Do(ctx, "meta:"+provider, func(ctx context.Context) ([]byte, error) {
		return getJSON(ctx, r.http, url)
	})
	if err != nil {
		metrics.MetadataFetches.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("metadata: discovery fetch for %q: %w", provider, err)
	}

	var ep Endpoints
	if err := json.Unmarshal(body, &ep); err != nil {
		metrics.MetadataFetches.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("metadata: discovery decode for %q: %w", provider, err)
	}
	if ep.Issuer == "" || ep.JWKSURI == "" || ep.TokenEndpoint == "" {
		metrics.MetadataFetches.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("metadata: discovery incompleto para %q", provider)
	}
	metrics.MetadataFetches.WithLabelValues(provider, "ok").Inc()

	if b, err := json.Marshal(&ep); err == nil {
		if err := r.cache.Set(ctx, cacheKey(provider), b, r.ttl); err != nil {
			logger.From(ctx).Warn("metadata cache set failed",
				logger.Component("oidc.metadata"), logger.Provider(provider), logger.Err(err))
		}
	}
	return &ep, nil
}

// getJSON hace un GET y clasifica errores para el retry: 5xx y errores de
// transporte son transitorios; 4xx es permanente.
func getJSON(ctx context.Context, hc *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
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
		return nil, fmt.Errorf("http %d from %s", resp.StatusCode, url)
	default:
		return nil, backoff.Permanent(fmt.Errorf("http %d from %s", resp.StatusCode, url))
	}
}
