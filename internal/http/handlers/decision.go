package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dropDatabas3/policygate/internal/audit"
	httpx "github.com/dropDatabas3/policygate/internal/http"
	"github.com/dropDatabas3/policygate/internal/jwks"
	"github.com/dropDatabas3/policygate/internal/keys"
	"github.com/dropDatabas3/policygate/internal/observability/logger"
	"github.com/dropDatabas3/policygate/internal/policy"
	"github.com/dropDatabas3/policygate/internal/token"
)

type decisionRequest struct {
	Token string `json:"token"`
}

type decisionResponse struct {
	Token string `json:"token"`
}

// DecisionHandler es el orquestador por request:
// Received → Parsed → Verified → Evaluated → Signed → Responded,
// con Error absorbente desde cualquier paso. El veredicto viaja DENTRO
// del token firmado: success:false sigue siendo HTTP 200. Solo los
// errores del protocolo son 403, siempre sin firmar.
type DecisionHandler struct {
	verifier  *token.Verifier
	evaluator *policy.Evaluator
	signer    *token.Signer
	debug     bool
}

func NewDecisionHandler(v *token.Verifier, e *policy.Evaluator, s *token.Signer, debug bool) *DecisionHandler {
	return &DecisionHandler{verifier: v, evaluator: e, signer: s, debug: debug}
}

func (h *DecisionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req decisionRequest
	if !readJSON(w, r, &req, func(w http.ResponseWriter, msg string) {
		h.deny(ctx, w, token.ErrMalformedToken, msg)
	}) {
		return
	}
	if req.Token == "" {
		h.deny(ctx, w, token.ErrMalformedToken, "falta token")
		return
	}

	claims, err := h.verifier.Verify(ctx, req.Token)
	if err != nil {
		httpx.RecordVerification(protocolErrorName(err))
		h.deny(ctx, w, err, "")
		return
	}
	httpx.RecordVerification("ok")

	success, err := h.evaluator.Evaluate(ctx, claims)
	if err != nil {
		// Falla real del colaborador (no "identidad desconocida", eso ya
		// es decisión false): deny.
		h.deny(ctx, w, err, "")
		return
	}

	signed, res, err := h.signer.SignDecision(ctx, success, claims.Nonce)
	if err != nil {
		h.deny(ctx, w, err, "")
		return
	}

	httpx.RecordDecision(res.Success)
	audit.Decision(ctx, claims.IdentityKey(), res.Success, res.KID, res.Nonce)

	httpx.WriteJSON(w, http.StatusOK, decisionResponse{Token: signed})
}

// deny cierra el request con 403. Nunca deja pasar un success:true por
// ningún camino de error.
func (h *DecisionHandler) deny(ctx context.Context, w http.ResponseWriter, err error, detail string) {
	name := protocolErrorName(err)
	logger.From(ctx).Warn("request denegado",
		logger.String("reason", name),
		logger.Err(err),
	)
	audit.Denied(ctx, name)

	stack := ""
	if h.debug {
		stack = err.Error()
		if detail != "" {
			stack = detail + ": " + stack
		}
	}
	httpx.WriteDeny(w, name, stack)
}

// protocolErrorName mapea un error a su nombre dentro de la taxonomía.
func protocolErrorName(err error) string {
	switch {
	case errors.Is(err, token.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, token.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, token.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, token.ErrInvalidClaims):
		return "invalid_claims"
	case errors.Is(err, jwks.ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, jwks.ErrUpstreamFetch):
		return "upstream_fetch_failure"
	case errors.Is(err, keys.ErrSigningKeyUnavailable):
		return "signing_key_unavailable"
	case errors.Is(err, keys.ErrKeyMismatch):
		return "key_mismatch"
	default:
		return "internal_error"
	}
}
