package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/dropDatabas3/policygate/internal/http/middlewares"
	"github.com/dropDatabas3/policygate/internal/rate"
)

// RouterDeps agrupa las dependencias del router principal.
type RouterDeps struct {
	Decision stdhttp.Handler // POST /
	Keys     stdhttp.Handler // GET  /keys
	Healthz  stdhttp.Handler
	Readyz   stdhttp.Handler
	Metrics  stdhttp.Handler // GET /metrics (nil deshabilita)

	DecideLimiter rate.Limiter // nil deshabilita
	KeysLimiter   rate.Limiter // nil deshabilita
}

// NewRouter arma el router del gateway. El endpoint de decisión cuelga
// de la raíz: el plano de control hace POST / con la assertion entrante.
func NewRouter(deps RouterDeps) stdhttp.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", asFunc(deps.Healthz))
	r.Get("/readyz", asFunc(deps.Readyz))
	if deps.Metrics != nil {
		r.Get("/metrics", asFunc(deps.Metrics))
	}

	r.Group(func(r chi.Router) {
		keysH := deps.Keys
		if deps.KeysLimiter != nil {
			keysH = mw.Chain(keysH, mw.WithRateLimit(deps.KeysLimiter, mw.IPPathRateKey))
		}
		r.Get("/keys", asFunc(keysH))
	})

	r.Group(func(r chi.Router) {
		decH := deps.Decision
		if deps.DecideLimiter != nil {
			decH = mw.Chain(decH, mw.WithRateLimit(deps.DecideLimiter, mw.IPPathRateKey))
		}
		r.Post("/", asFunc(decH))
	})

	// Ambientes comunes a todo el árbol.
	return mw.Chain(r,
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.Middleware(WithMetrics),
	)
}

func asFunc(h stdhttp.Handler) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) { h.ServeHTTP(w, r) }
}
