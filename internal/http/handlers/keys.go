package handlers

import (
	"encoding/json"
	"net/http"

	httpx "github.com/dropDatabas3/policygate/internal/http"
	"github.com/dropDatabas3/policygate/internal/keys"
	"github.com/dropDatabas3/policygate/internal/observability/logger"
)

type keySetResponse struct {
	Keys []json.RawMessage `json:"keys"`
}

// KeysHandler publica el JWK set del gateway (solo la parte pública).
// Genera el par de forma perezosa en el primer acceso; en carrera gana
// exactamente uno y el resto sirve el registro del ganador.
type KeysHandler struct {
	mgr *keys.Manager
}

func NewKeysHandler(mgr *keys.Manager) *KeysHandler {
	return &KeysHandler{mgr: mgr}
}

func (h *KeysHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec, err := h.mgr.EnsureKeyPair(r.Context())
	if err != nil {
		logger.From(r.Context()).Error("no se pudo asegurar el par de claves", logger.Err(err))
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "signing_key_unavailable",
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, keySetResponse{
		Keys: []json.RawMessage{json.RawMessage(rec.PublicJWK)},
	})
}
