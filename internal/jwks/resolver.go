// Package jwks resuelve las claves públicas de verificación del plano de
// control: fetch HTTPS del key-set remoto, cache del set completo por TTL
// y selección por kid.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/policygate/internal/cache"
	"github.com/dropDatabas3/policygate/internal/keys"
	"github.com/dropDatabas3/policygate/internal/observability/logger"
)

var (
	// ErrKeyNotFound: el set recién traído no tiene el kid pedido.
	// No se reintenta dentro del mismo call.
	ErrKeyNotFound = errors.New("verification_key_not_found")

	// ErrUpstreamFetch: el endpoint remoto no respondió 2xx (o no
	// respondió). El call falla cerrado, sin degradar a un set vencido.
	ErrUpstreamFetch = errors.New("keyset_fetch_failed")
)

// cacheKey: una sola entrada, el set completo serializado.
const cacheKey = "jwks:remote-set"

// maxSetBytes acota el body del key-set remoto.
const maxSetBytes = 1 << 20

// Doer abstrae el http.Client para poder inyectar fakes en tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Set es el documento JWKS-shaped del plano de control.
type Set struct {
	Keys []keys.PublicJWK `json:"keys"`
}

// Resolver cachea el key-set remoto y resuelve claves por kid.
//
// Reloj y cliente HTTP inyectados: la expiración por TTL se testea sin
// tiempo real. Misses concurrentes colapsan en un único GET (singleflight).
type Resolver struct {
	endpoint string
	httpc    Doer
	cache    cache.Client
	ttl      time.Duration
	now      func() time.Time
	onFetch  func(ok bool)
	sf       singleflight.Group
}

type Option func(*Resolver)

// WithClock inyecta un reloj (tests de TTL).
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithDoer inyecta el cliente HTTP.
func WithDoer(d Doer) Option {
	return func(r *Resolver) { r.httpc = d }
}

// WithFetchObserver notifica el resultado de cada fetch remoto (métricas).
func WithFetchObserver(fn func(ok bool)) Option {
	return func(r *Resolver) { r.onFetch = fn }
}

func NewResolver(endpoint string, c cache.Client, ttl time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: 5 * time.Second},
		cache:    c,
		ttl:      ttl,
		now:      time.Now,
	}
	if r.ttl <= 0 {
		r.ttl = 300 * time.Second
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// envelope guarda el set junto al instante del fetch. La expiración se
// decide acá contra el reloj inyectado (no contra el del backend), así
// los tests de TTL corren sin tiempo real.
type envelope struct {
	FetchedAt time.Time `json:"fetched_at"`
	Body      string    `json:"body"`
}

// ResolveVerificationKey devuelve la clave pública para el kid dado.
// Cache hit: sin red; un kid ausente del set vigente es ErrKeyNotFound
// (una rotación remota recién se observa cuando el cache vence, por
// diseño). Miss o TTL vencido: UN solo GET al endpoint, se cachea el set
// completo (amortiza lookups de otros kids) y se selecciona el kid.
func (r *Resolver) ResolveVerificationKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if raw, ok := r.cachedSet(ctx); ok {
		return selectKID(raw, kid)
	}

	raw, err := r.fetchSet(ctx)
	if err != nil {
		return nil, err
	}
	return selectKID(raw, kid)
}

// cachedSet devuelve el set vigente, o ok=false si no hay o venció.
func (r *Resolver) cachedSet(ctx context.Context) (string, bool) {
	raw, err := r.cache.Get(ctx, cacheKey)
	if err != nil {
		return "", false
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return "", false
	}
	if r.now().After(env.FetchedAt.Add(r.ttl)) {
		return "", false
	}
	return env.Body, true
}

// fetchSet trae el set remoto (deduplicado) y lo cachea por TTL.
func (r *Resolver) fetchSet(ctx context.Context) (string, error) {
	v, err, _ := r.sf.Do(cacheKey, func() (interface{}, error) {
		body, err := r.doFetch(ctx)
		if r.onFetch != nil {
			r.onFetch(err == nil)
		}
		return body, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) doFetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	start := r.now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		logger.Named("jwks").Warn("fetch del key-set falló", logger.Err(err))
		return "", fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Named("jwks").Warn("key-set respondió non-2xx", logger.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: status %d", ErrUpstreamFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSetBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrUpstreamFetch, err)
	}

	// Validar estructura antes de cachear: un body roto no debe
	// envenenar el cache.
	var set Set
	if err := json.Unmarshal(body, &set); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUpstreamFetch, err)
	}

	env, _ := json.Marshal(envelope{FetchedAt: r.now(), Body: string(body)})
	if err := r.cache.Set(ctx, cacheKey, string(env), r.ttl); err != nil {
		// Cache caído no es fatal: el set ya está en mano.
		logger.Named("jwks").Warn("no se pudo cachear el key-set", logger.Err(err))
	}

	logger.Named("jwks").Debug("key-set remoto actualizado",
		logger.Int("keys", len(set.Keys)),
		logger.Duration(r.now().Sub(start)),
	)
	return string(body), nil
}

// selectKID busca el kid dentro del set serializado.
func selectKID(raw, kid string) (*rsa.PublicKey, error) {
	var set Set
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("%w: set cacheado inválido: %v", ErrUpstreamFetch, err)
	}
	for _, j := range set.Keys {
		if j.Kid == kid {
			pub, err := j.PublicKey()
			if err != nil {
				return nil, fmt.Errorf("%w: jwk %s: %v", ErrKeyNotFound, kid, err)
			}
			return pub, nil
		}
	}
	return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
}
