package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	httpkeys "github.com/dropDatabas3/policygate/internal/keys"
	"github.com/dropDatabas3/policygate/internal/store/core"
	memstore "github.com/dropDatabas3/policygate/internal/store/memory"
)

func TestKeysHandler_LazyGeneratesAndServesPublicSet(t *testing.T) {
	os.Unsetenv("SIGNING_PRIVATE_JWK")
	store := memstore.NewKeyStore()
	h := NewKeysHandler(httpkeys.NewManager(store, httpkeys.CustodySplit, httpkeys.EnvSecretSource{}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/keys", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Keys []httpkeys.PublicJWK `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if len(resp.Keys) != 1 {
		t.Fatalf("esperaba 1 clave, hay %d", len(resp.Keys))
	}
	j := resp.Keys[0]
	if j.Kty != "RSA" || j.Kid == "" || j.N == "" {
		t.Fatalf("JWK incompleto: %+v", j)
	}

	// El registro quedó persistido: una segunda llamada sirve el mismo kid.
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/keys", nil))
	var resp2 struct {
		Keys []httpkeys.PublicJWK `json:"keys"`
	}
	_ = json.Unmarshal(rec2.Body.Bytes(), &resp2)
	if resp2.Keys[0].Kid != j.Kid {
		t.Fatalf("kid cambió entre llamadas: %s vs %s", resp2.Keys[0].Kid, j.Kid)
	}

	// Nunca se filtra material privado.
	body := rec.Body.String()
	for _, priv := range []string{`"d":`, `"p":`, `"q":`, `"dp":`, `"dq":`, `"qi":`} {
		if strings.Contains(body, priv) {
			t.Fatalf("respuesta expone parámetro privado %s", priv)
		}
	}
}

// brokenKeyStore fuerza el camino de error del handler.
type brokenKeyStore struct{}

func (brokenKeyStore) Get(ctx context.Context) (*core.KeyRecord, error) {
	return nil, errors.New("disco roto")
}
func (brokenKeyStore) PutIfAbsent(ctx context.Context, rec *core.KeyRecord) error {
	return errors.New("disco roto")
}

func TestKeysHandler_StoreFailureIs500(t *testing.T) {
	h := NewKeysHandler(httpkeys.NewManager(brokenKeyStore{}, httpkeys.CustodySplit, httpkeys.EnvSecretSource{}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/keys", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("sin conexión") }

func TestReadyz(t *testing.T) {
	ok := Readyz(memstore.NewKeyStore())
	rec := httptest.NewRecorder()
	ok(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: status %d", rec.Code)
	}

	bad := Readyz(failingPinger{})
	rec = httptest.NewRecorder()
	bad(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready: status %d", rec.Code)
	}
}
