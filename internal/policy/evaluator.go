// Package policy contiene el evaluador de la regla de autorización local.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/policygate/internal/store/core"
	"github.com/dropDatabas3/policygate/internal/token"
)

// Evaluator mapea claims verificados a la decisión booleana consultando
// el store de training status. Sin cache: el store es la fuente de
// verdad y cada decisión debe reflejar el último estado.
type Evaluator struct {
	statuses core.TrainingStatusStore
}

func NewEvaluator(statuses core.TrainingStatusStore) *Evaluator {
	return &Evaluator{statuses: statuses}
}

// Evaluate devuelve true sii el status de la identidad es exactamente
// "completed". Identidad desconocida o cualquier otro status es false:
// default deny, nunca un error. Un fallo real del store sí es error (y
// el orquestador lo convierte en deny).
func (e *Evaluator) Evaluate(ctx context.Context, claims *token.Claims) (bool, error) {
	key := claims.IdentityKey()
	if key == "" {
		return false, nil
	}

	st, err := e.statuses.GetStatus(ctx, key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Identidad sin registro: decisión false, no error.
			return false, nil
		}
		return false, fmt.Errorf("policy: consultar status: %w", err)
	}
	return st == core.TrainingCompleted, nil
}
