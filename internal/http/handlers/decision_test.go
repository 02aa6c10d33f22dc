package handlers

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/policygate/internal/cache"
	"github.com/dropDatabas3/policygate/internal/jwks"
	"github.com/dropDatabas3/policygate/internal/keys"
	"github.com/dropDatabas3/policygate/internal/policy"
	"github.com/dropDatabas3/policygate/internal/store/core"
	memstore "github.com/dropDatabas3/policygate/internal/store/memory"
	"github.com/dropDatabas3/policygate/internal/token"
)

// gatewayFixture arma el pipeline completo: plano de control falso
// (JWKS por httptest), stores en memoria y el par de firma del gateway.
type gatewayFixture struct {
	cpPriv  *rsa.PrivateKey
	cpKID   string
	handler *DecisionHandler
	mgr     *keys.Manager
	now     time.Time
}

func newGatewayFixture(t *testing.T, statuses map[string]core.TrainingStatus) *gatewayFixture {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)

	// Clave del plano de control publicada vía JWKS.
	cpPriv, err := keys.GenerateRSA()
	if err != nil {
		t.Fatalf("GenerateRSA: %v", err)
	}
	cpJWK := keys.NewPublicJWK(&cpPriv.PublicKey)
	setBody, _ := json.Marshal(jwks.Set{Keys: []keys.PublicJWK{cpJWK}})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(setBody)
	}))
	t.Cleanup(srv.Close)

	resolver := jwks.NewResolver(srv.URL, cache.NewMemory("t:", time.Minute), 300*time.Second,
		jwks.WithClock(func() time.Time { return now }))
	verifier := token.NewVerifier(resolver, "policygate",
		token.WithVerifierClock(func() time.Time { return now }))

	// Clave de firma del gateway (custody split vía env).
	gwPriv, _ := keys.GenerateRSA()
	privJSON, _ := json.Marshal(keys.NewPrivateJWK(gwPriv))
	os.Setenv("SIGNING_PRIVATE_JWK", string(privJSON))
	t.Cleanup(func() { os.Unsetenv("SIGNING_PRIVATE_JWK") })

	store := memstore.NewKeyStore()
	pubJSON, _ := json.Marshal(keys.NewPublicJWK(&gwPriv.PublicKey))
	if err := store.PutIfAbsent(context.Background(), &core.KeyRecord{
		KID:       keys.KIDFromPublicKey(&gwPriv.PublicKey),
		Alg:       keys.AlgRS256,
		PublicJWK: pubJSON,
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("PutIfAbsent: %v", err)
	}
	mgr := keys.NewManager(store, keys.CustodySplit, keys.EnvSecretSource{})

	evaluator := policy.NewEvaluator(memstore.NewStatusStore(statuses))
	signer := token.NewSigner(mgr, 300*time.Second,
		token.WithSignerClock(func() time.Time { return now }))

	return &gatewayFixture{
		cpPriv:  cpPriv,
		cpKID:   cpJWK.Kid,
		handler: NewDecisionHandler(verifier, evaluator, signer, false),
		mgr:     mgr,
		now:     now,
	}
}

func (f *gatewayFixture) inboundToken(t *testing.T, email, nonce string, exp time.Time) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, jwtv5.MapClaims{
		"identity": map[string]any{"email": email},
		"exp":      exp.Unix(),
		"iat":      f.now.Unix(),
		"nonce":    nonce,
		"aud":      "policygate",
	})
	tok.Header["kid"] = f.cpKID
	signed, err := tok.SignedString(f.cpPriv)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func (f *gatewayFixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// decodeDecision verifica el token de respuesta con la pública del
// gateway y devuelve sus claims.
func (f *gatewayFixture) decodeDecision(t *testing.T, rec *httptest.ResponseRecorder) jwtv5.MapClaims {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("respuesta no es JSON: %v", err)
	}

	priv, _, err := f.mgr.LoadSigningKey(context.Background())
	if err != nil {
		t.Fatalf("LoadSigningKey: %v", err)
	}
	parsed, err := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithTimeFunc(func() time.Time { return f.now }),
	).Parse(resp.Token, func(*jwtv5.Token) (any, error) { return &priv.PublicKey, nil })
	if err != nil {
		t.Fatalf("token de respuesta no verifica: %v", err)
	}
	return parsed.Claims.(jwtv5.MapClaims)
}

func TestDecision_AllowCompleted(t *testing.T) {
	f := newGatewayFixture(t, map[string]core.TrainingStatus{"alice": core.TrainingCompleted})

	raw := f.inboundToken(t, "alice@example.com", "n-1", f.now.Add(5*time.Minute))
	rec := f.post(t, `{"token":"`+raw+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	mc := f.decodeDecision(t, rec)
	if mc["success"] != true {
		t.Fatalf("success: %v", mc["success"])
	}
	if mc["nonce"] != "n-1" {
		t.Fatalf("nonce no ecoado: %v", mc["nonce"])
	}
}

func TestDecision_DenyIsStillHTTP200(t *testing.T) {
	// El veredicto negativo viaja FIRMADO con status 200: deny de
	// política no es error de protocolo.
	f := newGatewayFixture(t, map[string]core.TrainingStatus{"bob": core.TrainingStarted})

	raw := f.inboundToken(t, "bob@example.com", "n-2", f.now.Add(5*time.Minute))
	rec := f.post(t, `{"token":"`+raw+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	mc := f.decodeDecision(t, rec)
	if mc["success"] != false {
		t.Fatalf("success: %v", mc["success"])
	}
}

func TestDecision_UnknownIdentityDenied(t *testing.T) {
	f := newGatewayFixture(t, nil)

	raw := f.inboundToken(t, "carol@example.com", "", f.now.Add(5*time.Minute))
	rec := f.post(t, `{"token":"`+raw+`"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	mc := f.decodeDecision(t, rec)
	if mc["success"] != false {
		t.Fatalf("success: %v", mc["success"])
	}
}

func denyBodyOf(t *testing.T, rec *httptest.ResponseRecorder) (bool, string) {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Stack   string `json:"stack"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("deny body no es JSON: %v (%s)", err, rec.Body.String())
	}
	return body.Success, body.Error
}

func TestDecision_MalformedToken403(t *testing.T) {
	f := newGatewayFixture(t, nil)

	rec := f.post(t, `{"token":"no.es.un.token.valido"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
	success, errName := denyBodyOf(t, rec)
	if success {
		t.Fatal("deny con success true")
	}
	if errName != "malformed_token" {
		t.Fatalf("error %q", errName)
	}
}

func TestDecision_ExpiredToken403(t *testing.T) {
	f := newGatewayFixture(t, map[string]core.TrainingStatus{"alice": core.TrainingCompleted})

	raw := f.inboundToken(t, "alice@example.com", "", f.now.Add(-time.Minute))
	rec := f.post(t, `{"token":"`+raw+`"}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
	if _, errName := denyBodyOf(t, rec); errName != "token_expired" {
		t.Fatalf("error %q", errName)
	}
}

func TestDecision_UnknownKID403(t *testing.T) {
	f := newGatewayFixture(t, nil)

	// Firmado con una clave que el plano de control no publica.
	otherPriv, _ := keys.GenerateRSA()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, jwtv5.MapClaims{
		"identity": map[string]any{"email": "alice@example.com"},
		"exp":      f.now.Add(5 * time.Minute).Unix(),
		"aud":      "policygate",
	})
	tok.Header["kid"] = keys.KIDFromPublicKey(&otherPriv.PublicKey)
	raw, _ := tok.SignedString(otherPriv)

	rec := f.post(t, `{"token":"`+raw+`"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d", rec.Code)
	}
	if _, errName := denyBodyOf(t, rec); errName != "key_not_found" {
		t.Fatalf("error %q", errName)
	}
}

func TestDecision_BadRequestBody403(t *testing.T) {
	f := newGatewayFixture(t, nil)

	for _, body := range []string{``, `{`, `{"token":""}`, `[]`} {
		rec := f.post(t, body)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("body %q: status %d", body, rec.Code)
		}
	}

	// Content-Type incorrecto también es deny.
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("content-type inválido: status %d", rec.Code)
	}
}
