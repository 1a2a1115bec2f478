package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/clave/internal/auth"
	"github.com/dropDatabas3/clave/internal/domain/repository"
	"github.com/dropDatabas3/clave/internal/oidc/metadata"
	"github.com/dropDatabas3/clave/internal/oidc/provider"
	"github.com/dropDatabas3/clave/internal/resilience"
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        int    `json:"error_code,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// WriteError escribe un error JSON estándar. Nunca incluye tokens ni
// secretos en la descripción.
func WriteError(w http.ResponseWriter, status int, code, desc string, errCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		ErrorCode:        errCode,
		RequestID:        rid,
	})
}

// WriteJSON: respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodifica JSON de forma tolerante (NO falla por campos
// desconocidos). Valida Content-Type y limita el body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json", 1102)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido", 1102)
		return false
	}
	return true
}

// WriteDomainError mapea errores sentinela del dominio a respuestas HTTP.
// La descripción es genérica a propósito: el detalle queda en los logs.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, "invalid_request", "entrada inválida", 1100)
	case errors.Is(err, provider.ErrUnsupported):
		WriteError(w, http.StatusBadRequest, "unsupported_provider", "provider no soportado", 1103)
	case errors.Is(err, auth.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "credenciales inválidas", 1301)
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		WriteError(w, http.StatusUnauthorized, "invalid_token", "refresh token inválido", 1302)
	case errors.Is(err, auth.ErrNotFoundActiveUser):
		WriteError(w, http.StatusUnauthorized, "invalid_token", "usuario no activo", 1303)
	case errors.Is(err, provider.ErrTokenExchange):
		WriteError(w, http.StatusUnauthorized, "token_exchange_failed", "intercambio de código rechazado", 1304)
	case errors.Is(err, provider.ErrInvalidIDToken):
		WriteError(w, http.StatusUnauthorized, "invalid_id_token", "id_token inválido", 1305)
	case errors.Is(err, repository.ErrConflict):
		WriteError(w, http.StatusConflict, "conflict", "el recurso ya existe", 1201)
	case errors.Is(err, auth.ErrNoActiveLink):
		WriteError(w, http.StatusNotFound, "link_not_found", "no hay vínculo activo", 1402)
	case errors.Is(err, repository.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "recurso no encontrado", 1403)
	case errors.Is(err, resilience.ErrCircuitOpen):
		WriteError(w, http.StatusServiceUnavailable, "upstream_unavailable", "provider temporalmente no disponible", 1502)
	case errors.Is(err, metadata.ErrNotConfigured):
		WriteError(w, http.StatusInternalServerError, "provider_not_configured", "provider no configurado", 1501)
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "error interno", 1500)
	}
}
