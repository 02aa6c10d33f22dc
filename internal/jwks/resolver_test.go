package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/policygate/internal/cache"
	"github.com/dropDatabas3/policygate/internal/keys"
)

// fakeClock avanza a mano para testear expiración sin tiempo real.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSet(t *testing.T) (keys.PublicJWK, string) {
	t.Helper()
	priv, err := keys.GenerateRSA()
	if err != nil {
		t.Fatalf("GenerateRSA: %v", err)
	}
	j := keys.NewPublicJWK(&priv.PublicKey)
	body, _ := json.Marshal(Set{Keys: []keys.PublicJWK{j}})
	return j, string(body)
}

func TestResolve_FetchesAndCaches(t *testing.T) {
	jwk, body := newTestSet(t)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	r := NewResolver(srv.URL, cache.NewMemory("test:", time.Minute), 300*time.Second, WithClock(clk.now))

	pub, err := r.ResolveVerificationKey(context.Background(), jwk.Kid)
	if err != nil {
		t.Fatalf("ResolveVerificationKey: %v", err)
	}
	if pub == nil || pub.N == nil {
		t.Fatal("clave pública vacía")
	}

	// Segundo resolve dentro del TTL: sin red.
	if _, err := r.ResolveVerificationKey(context.Background(), jwk.Kid); err != nil {
		t.Fatalf("ResolveVerificationKey (2): %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("esperaba 1 fetch, hubo %d", n)
	}
}

func TestResolve_UnknownKIDNoRefetchWithinTTL(t *testing.T) {
	jwk, body := newTestSet(t)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	r := NewResolver(srv.URL, cache.NewMemory("test:", time.Minute), 300*time.Second, WithClock(clk.now))

	if _, err := r.ResolveVerificationKey(context.Background(), jwk.Kid); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	// kid ausente con set vigente: falla final, sin volver a la red.
	// Una rotación remota recién se observa cuando vence el TTL.
	_, err := r.ResolveVerificationKey(context.Background(), "kid-rotado")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("esperaba ErrKeyNotFound, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("kid-miss con cache fresco no debe refetchear (fetches=%d)", n)
	}
}

func TestResolve_RefetchAfterTTL(t *testing.T) {
	jwk, body := newTestSet(t)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	r := NewResolver(srv.URL, cache.NewMemory("test:", time.Minute), 300*time.Second, WithClock(clk.now))

	if _, err := r.ResolveVerificationKey(context.Background(), jwk.Kid); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	clk.advance(301 * time.Second)
	if _, err := r.ResolveVerificationKey(context.Background(), jwk.Kid); err != nil {
		t.Fatalf("resolve post-TTL: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("esperaba refetch tras TTL (fetches=%d)", n)
	}
}

func TestResolve_UpstreamNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewResolver(srv.URL, cache.NewMemory("test:", time.Minute), 300*time.Second)
	_, err := r.ResolveVerificationKey(context.Background(), "cualquiera")
	if !errors.Is(err, ErrUpstreamFetch) {
		t.Fatalf("esperaba ErrUpstreamFetch, got %v", err)
	}
}

func TestResolve_InvalidBodyNotCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("esto no es json"))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL, cache.NewMemory("test:", time.Minute), 300*time.Second)

	for i := 0; i < 2; i++ {
		_, err := r.ResolveVerificationKey(context.Background(), "kid")
		if !errors.Is(err, ErrUpstreamFetch) {
			t.Fatalf("esperaba ErrUpstreamFetch, got %v", err)
		}
	}
	// Un body roto nunca entra al cache: cada intento vuelve a la red.
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("esperaba 2 fetches, hubo %d", n)
	}
}
