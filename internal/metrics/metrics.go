// Package metrics define las métricas Prometheus del servicio.
// Va en un package propio para evitar ciclos de import entre
// resolvers y HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MetadataFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_metadata_fetches_total",
		Help: "Fetches del discovery document, por provider y resultado",
	}, []string{"provider", "result"})

	MetadataCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_metadata_cache_hits_total",
		Help: "Hits de cache del discovery document",
	}, []string{"provider"})

	MetadataCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_metadata_cache_misses_total",
		Help: "Misses de cache del discovery document",
	}, []string{"provider"})

	JWKSFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_jwks_fetches_total",
		Help: "Fetches del JWKS, por provider y resultado",
	}, []string{"provider", "result"})

	JWKSCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_jwks_cache_hits_total",
		Help: "Hits de cache del JWKS",
	}, []string{"provider"})

	JWKSCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_jwks_cache_misses_total",
		Help: "Misses de cache del JWKS",
	}, []string{"provider"})

	BreakerOpens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_breaker_opens_total",
		Help: "Veces que el circuit breaker pasó a open, por key",
	}, []string{"key"})

	IDTokenValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oidc_id_token_validations_total",
		Help: "Validaciones de ID token, por provider y resultado",
	}, []string{"provider", "result"})

	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "app_tokens_issued_total",
		Help: "Tokens propios emitidos, por kind (access|refresh)",
	}, []string{"kind"})

	LoginDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oidc_login_duration_seconds",
		Help:    "Duración end-to-end del login social, por provider",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"provider"})
)

// Register registra todas las métricas en el registry dado
// (o el default si es nil). Tolera AlreadyRegisteredError.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cs := []prometheus.Collector{
		MetadataFetches, MetadataCacheHits, MetadataCacheMisses,
		JWKSFetches, JWKSCacheHits, JWKSCacheMisses,
		BreakerOpens, IDTokenValidations, TokensIssued, LoginDuration,
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
