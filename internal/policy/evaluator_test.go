package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/dropDatabas3/policygate/internal/store/core"
	memstore "github.com/dropDatabas3/policygate/internal/store/memory"
	"github.com/dropDatabas3/policygate/internal/token"
)

func claimsFor(email string) *token.Claims {
	c := &token.Claims{}
	c.Identity.Email = email
	return c
}

func TestEvaluate_StatusMapping(t *testing.T) {
	statuses := memstore.NewStatusStore(map[string]core.TrainingStatus{
		"alice": core.TrainingCompleted,
		"bob":   core.TrainingStarted,
		"dave":  core.TrainingNotStarted,
	})
	e := NewEvaluator(statuses)
	ctx := context.Background()

	cases := []struct {
		email string
		want  bool
	}{
		{"alice@example.com", true},
		{"Alice@Example.com", true}, // normalización a minúsculas
		{"bob@example.com", false},
		{"dave@example.com", false},
		{"carol@example.com", false}, // sin registro: deny, no error
	}
	for _, tc := range cases {
		got, err := e.Evaluate(ctx, claimsFor(tc.email))
		if err != nil {
			t.Fatalf("%s: err inesperado: %v", tc.email, err)
		}
		if got != tc.want {
			t.Fatalf("%s: decisión %v, esperaba %v", tc.email, got, tc.want)
		}
	}
}

func TestEvaluate_EmptyIdentityKey(t *testing.T) {
	e := NewEvaluator(memstore.NewStatusStore(nil))
	got, err := e.Evaluate(context.Background(), claimsFor(""))
	if err != nil || got {
		t.Fatalf("identity vacía: got=%v err=%v, esperaba false,nil", got, err)
	}
}

// failingStore simula un backend caído.
type failingStore struct{}

func (failingStore) GetStatus(ctx context.Context, identityKey string) (core.TrainingStatus, error) {
	return "", errors.New("conexión rechazada")
}

func TestEvaluate_StoreFailureIsError(t *testing.T) {
	e := NewEvaluator(failingStore{})
	got, err := e.Evaluate(context.Background(), claimsFor("alice@example.com"))
	if err == nil {
		t.Fatal("falla del store debería propagarse como error")
	}
	if got {
		t.Fatal("nunca true ante un error")
	}
}
