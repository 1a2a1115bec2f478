// Package audit registra eventos de autenticación (signup, login,
// unlink) en el log estructurado. Los emails van siempre enmascarados.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/clave/internal/observability/logger"
	"github.com/dropDatabas3/clave/internal/util"
)

// Event emite un evento de auditoría con los campos dados.
func Event(ctx context.Context, event string, fields ...zap.Field) {
	logger.From(ctx).With(logger.Component("audit")).
		Info(event, append(fields, zap.String("event", event))...)
}

// MaskedEmail crea un campo email enmascarado para auditoría.
func MaskedEmail(email string) zap.Field {
	return zap.String("email", util.MaskEmail(email))
}
