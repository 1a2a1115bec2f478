// Package resilience envuelve llamadas de red salientes con retry acotado
// y circuit breaker por key (provider).
//
// Orden de capas: breaker(retry(op)). Cada llamada al resolver cuenta como
// UN resultado para el breaker, después de agotar los reintentos locales.
// Errores permanentes (4xx, fallas criptográficas) se marcan con
// backoff.Permanent aguas arriba y no se reintentan.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/dropDatabas3/clave/internal/observability/logger"
)

// ErrCircuitOpen indica que el breaker del provider está abierto y la
// llamada se cortó sin ir a la red.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// Config del wrapper.
type Config struct {
	// MaxRetries reintentos por llamada (sin contar el intento inicial).
	MaxRetries int
	// BreakerThreshold fallos consecutivos antes de abrir.
	BreakerThreshold uint32
	// BreakerCooldown tiempo en estado open antes de half-open.
	BreakerCooldown time.Duration
	// OnStateChange callback opcional (métricas).
	OnStateChange func(key string, from, to string)
}

// Caller mantiene un breaker por key. Thread-safe.
type Caller struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewCaller crea un Caller con la configuración dada.
func NewCaller(cfg Config) *Caller {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	return &Caller{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

func (c *Caller) breaker(key string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[key]; ok {
		return cb
	}
	threshold := c.cfg.BreakerThreshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    key,
		Timeout: c.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.L().Warn("circuit breaker state change",
				logger.Component("resilience"),
				logger.Key(name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			if c.cfg.OnStateChange != nil {
				c.cfg.OnStateChange(name, from.String(), to.String())
			}
		},
	})
	c.breakers[key] = cb
	return cb
}

// Do ejecuta op con retry acotado dentro del breaker de la key.
// Retorna ErrCircuitOpen (envolviendo el error del breaker) si está abierto.
func (c *Caller) Do(ctx context.Context, key string, op func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	cb := c.breaker(key)
	out, err := cb.Execute(func() ([]byte, error) {
		return c.retry(ctx, op)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Join(ErrCircuitOpen, err)
		}
		return nil, err
	}
	return out, nil
}

func (c *Caller) retry(ctx context.Context, op func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx,
		func() ([]byte, error) { return op(ctx) },
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)+1),
	)
}
