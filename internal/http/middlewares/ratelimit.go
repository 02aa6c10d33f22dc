package middlewares

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/policygate/internal/observability/logger"
	"github.com/dropDatabas3/policygate/internal/rate"
)

// RateKeyFunc deriva la clave de limiting a partir del request.
type RateKeyFunc func(r *http.Request) string

// IPPathRateKey genera la clave IP + path (sin leer el body), así cada
// endpoint tiene su propio presupuesto por cliente.
func IPPathRateKey(r *http.Request) string {
	return clientIP(r) + "|" + r.URL.Path
}

// WithRateLimit aplica un limiter de ventana fija. Si el limiter mismo
// falla (ej. redis caído) se registra y el request PASA: el limiting es
// protección de capacidad, no parte del protocolo de confianza.
func WithRateLimit(l rate.Limiter, keyFn RateKeyFunc) Middleware {
	if keyFn == nil {
		keyFn = IPPathRateKey
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter no disponible", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
