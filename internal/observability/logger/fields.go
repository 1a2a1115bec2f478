package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar para mantener nombres consistentes en todos los logs.

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field { return zap.String("method", v) }

// Path crea un campo para el path del request.
func Path(v string) zap.Field { return zap.String("path", v) }

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field { return zap.Int("status", v) }

// Duration crea un campo para la duración de una operación.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Provider crea un campo para el provider OIDC ("google", "kakao", ...).
func Provider(v string) zap.Field { return zap.String("provider", v) }

// UserID crea un campo para el ID del usuario.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Email crea un campo para el email (usar con cuidado en prod).
func Email(v string) zap.Field { return zap.String("email", v) }

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Layer crea un campo para la capa (handler, service, resolver, store).
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Key crea un campo genérico para una clave de cache.
func Key(v string) zap.Field { return zap.String("key", v) }

// KID crea un campo para el key-id de una signing key.
func KID(v string) zap.Field { return zap.String("kid", v) }

// Bytes crea un campo para bytes escritos en una respuesta.
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

// DurationMs crea un campo para duración en milisegundos.
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// Count crea un campo para un conteo.
func Count(v int) zap.Field { return zap.Int("count", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

// String crea un campo string genérico.
func String(key, v string) zap.Field { return zap.String(key, v) }

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
