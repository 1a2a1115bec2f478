// Package warmup pre-puebla los caches de discovery y JWKS al arrancar
// y una vez por día. Best-effort: las fallas por provider se loguean y
// nunca cortan el loop ni el arranque.
package warmup

import (
	"context"
	"time"

	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/oidc/jwks"
	"github.com/dropDatabas3/clave/internal/oidc/metadata"
)

// Scheduler refresca los resolvers de todos los providers configurados.
type Scheduler struct {
	Metadata *metadata.Resolver
	JWKS     *jwks.Resolver
	// Interval entre corridas. Default 24h.
	Interval time.Duration
}

// Run ejecuta un warmup inmediato y después uno por Interval, hasta que
// el contexto se cancele. Pensado para correr en su propia goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	s.warmAll(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.warmAll(ctx)
		}
	}
}

func (s *Scheduler) warmAll(ctx context.Context) {
	log := logger.From(ctx).With(logger.Component("warmup"))
	providers := s.Metadata.Providers()
	for _, p := range providers {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Metadata.Refresh(ctx, p); err != nil {
			log.Warn("metadata warmup failed", logger.Provider(p), logger.Err(err))
			continue
		}
		if _, err := s.JWKS.Refresh(ctx, p); err != nil {
			log.Warn("jwks warmup failed", logger.Provider(p), logger.Err(err))
			continue
		}
		log.Info("caches warmed", logger.Provider(p))
	}
	log.Debug("warmup pass done", logger.Count(len(providers)))
}
