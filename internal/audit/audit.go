// Package audit escribe el rastro estructurado de decisiones. Hoy sale
// por el logger; a futuro puede colgarse un sink externo.
package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/dropDatabas3/policygate/internal/observability/logger"
)

// Decision registra una decisión emitida (firmada y devuelta).
func Decision(ctx context.Context, subject string, success bool, kid, nonce string) {
	logger.From(ctx).Named("audit").Info("decision issued",
		logger.String("event_id", uuid.NewString()),
		logger.Subject(subject),
		logger.Decision(success),
		logger.KID(kid),
		logger.Nonce(nonce),
	)
}

// Denied registra un request rechazado en la frontera (fail-closed).
func Denied(ctx context.Context, reason string) {
	logger.From(ctx).Named("audit").Warn("request denied",
		logger.String("event_id", uuid.NewString()),
		logger.String("reason", reason),
	)
}
