// Package jwks resuelve, cachea e indexa el JSON Web Key Set de cada
// provider. El lookup por kid modela rotación de claves: un kid ausente
// del set cacheado dispara exactamente un refresh antes de rendirse.
package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/clave/internal/cache"
	"github.com/dropDatabas3/clave/internal/metrics"
	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/oidc/metadata"
	"github.com/dropDatabas3/clave/internal/resilience"
)

// DefaultTTL del key set en cache (misma política que el discovery).
const DefaultTTL = 24 * time.Hour

// Config del resolver.
type Config struct {
	Metadata   *metadata.Resolver
	Cache      cache.Client
	Caller     *resilience.Caller
	HTTPClient *http.Client
	TTL        time.Duration
}

// Resolver fetchea y cachea key sets keyed por provider.
type Resolver struct {
	meta   *metadata.Resolver
	cache  cache.Client
	caller *resilience.Caller
	http   *http.Client
	ttl    time.Duration
	sf     singleflight.Group
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
		meta:   cfg.Metadata,
		cache:  c,
		caller: cfg.Caller,
		http:   hc,
		ttl:    ttl,
	}
}

func cacheKey(provider string) string { return "oidc:jwks:" + provider }

// Keys devuelve el key set del provider, del cache si está fresco.
// Misses concurrentes se coalescen en un solo fetch.
func (r *Resolver) Keys(ctx context.Context, provider string) (*Set, error) {
	if b, err := r.cache.Get(ctx, cacheKey(provider)); err == nil {
		var s Set
		if json.Unmarshal(b, &s) == nil {
			metrics.JWKSCacheHits.WithLabelValues(provider).Inc()
			return &s, nil
		}
	}
	metrics.JWKSCacheMisses.WithLabelValues(provider).Inc()

	// El vuelo corre sin la cancelación del caller que lo ganó: si ese
	// caller se va, los coalescidos igual reciben el resultado.
	fctx := context.WithoutCancel(ctx)
	v, err, _ := r.sf.Do(provider, func() (any, error) {
		if b, err := r.cache.Get(fctx, cacheKey(provider)); err == nil {
			var s Set
			if json.Unmarshal(b, &s) == nil {
				return &s, nil
			}
		}
		return r.fetchAndStore(fctx, provider)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Set), nil
}

// Refresh fuerza un re-fetch del JWKS y reemplaza la entrada del cache.
func (r *Resolver) Refresh(ctx context.Context, provider string) (*Set, error) {
	return r.fetchAndStore(ctx, provider)
}

// FindKeyByKID busca la clave por kid. Primero contra el cache; si no
// está, dispara UN refresh y vuelve a buscar (rotación de claves).
// Retorna (nil, nil) si la clave no existe tampoco después del refresh.
func (r *Resolver) FindKeyByKID(ctx context.Context, provider, kid, alg string) (*Key, error) {
	set, err := r.Keys(ctx, provider)
	if err != nil {
		return nil, err
	}
	if k := find(set, kid, alg); k != nil {
		return k, nil
	}

	log := logger.From(ctx).With(logger.Component("oidc.jwks"), logger.Provider(provider))
	log.Info("kid not in cached set, refreshing", logger.KID(kid))

	set, err = r.Refresh(ctx, provider)
	if err != nil {
		return nil, err
	}
	return find(set, kid, alg), nil
}

func find(s *Set, kid, alg string) *Key {
	for i := range s.Keys {
		if s.Keys[i].Matches(kid, alg) {
			return &s.Keys[i]
		}
	}
	return nil
}

func (r *Resolver) fetchAndStore(ctx context.Context, provider string) (*Set, error) {
	ep, err := r.meta.Resolve(ctx, provider)
	if err != nil {
		return nil, err
	}

	body, err := r.caller.Do(ctx, "jwks:"+provider, func(ctx context.Context) ([]byte, error) {
		return getJSON(ctx, r.http, ep.JWKSURI)
	})
	if err != nil {
		metrics.JWKSFetches.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("jwks: fetch for %q: %w", provider, err)
	}

	var s Set
	if err := json.Unmarshal(body, &s); err != nil {
		metrics.JWKSFetches.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("jwks: decode for %q: %w", provider, err)
	}
	metrics.JWKSFetches.WithLabelValues(provider, "ok").Inc()

	if b, err := json.Marshal(&s); err == nil {
		if err := r.cache.Set(ctx, cacheKey(provider), b, r.ttl); err != nil {
			logger.From(ctx).Warn("jwks cache set failed",
				logger.Component("oidc.jwks"), logger.Provider(provider), logger.Err(err))
		}
	}
	return &s, nil
}

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
