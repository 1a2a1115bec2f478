package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterDeps dependencias del router principal.
type RouterDeps struct {
	Handlers *Handlers
	// Metrics es el handler de /metrics (promhttp). Opcional.
	Metrics http.Handler
	// RateLimit se aplica solo a los endpoints de autenticación. Opcional.
	RateLimit Middleware
}

// NewRouter arma el router con la cadena de middlewares estándar.
func NewRouter(deps RouterDeps) http.Handler {
	h := deps.Handlers
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Endpoints que devuelven tokens: nunca cachear.
	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit)
		}
		r.Post("/signup", h.HandleSignup)
		r.Post("/login", h.HandleLogin)
		r.Post("/oidc/signup", h.HandleOIDCSignup)
		r.Post("/refresh", h.HandleRefresh)
		r.Delete("/oidc/link/{provider}", h.HandleUnlink)
	})

	return Chain(r,
		WithRecover(),
		WithRequestID(),
		WithSecurityHeaders(),
		WithNoStore(),
		WithLogging(),
	)
}
