package handlers

import (
	"context"
	"net/http"
	"time"

	httpx "github.com/dropDatabas3/policygate/internal/http"
	"github.com/dropDatabas3/policygate/internal/store/core"
)

// Healthz es el liveness: responde siempre que el proceso esté vivo.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz es el readiness: verifica que el storage responda.
func Readyz(pinger core.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
