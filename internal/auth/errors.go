package auth

import "errors"

var (
	// ErrInvalidRefreshToken indica un refresh token vencido, malformado
	// o sin subject. Mapea a 401.
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")

	// ErrNotFoundActiveUser indica que el subject ya no resuelve a un
	// usuario activo. Mapea a 401 (no 404: no filtramos existencia).
	ErrNotFoundActiveUser = errors.New("auth: active user not found")

	// ErrInvalidCredentials indica email/password incorrectos.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrNoActiveLink indica que no hay link activo para desvincular.
	ErrNoActiveLink = errors.New("auth: no active social link")
)
