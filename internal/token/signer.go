package token

import (
	"context"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/policygate/internal/keys"
)

// Result es el payload de la assertion saliente. El veredicto viaja acá
// adentro (firmado), no en el status HTTP.
type Result struct {
	Success bool   `json:"success"`
	Iat     int64  `json:"iat"`
	Exp     int64  `json:"exp"`
	Nonce   string `json:"nonce,omitempty"`

	// KID va en el header del token, no en el payload.
	KID string `json:"-"`
}

// Signer firma la respuesta de decisión con la clave del gateway.
// Invariante: Exp = Iat + ttl (ventana fija); el nonce ecoa el del
// request entrante cuando está presente.
type Signer struct {
	mgr *keys.Manager
	ttl time.Duration
	now func() time.Time
}

type SignerOption func(*Signer)

// WithSignerClock inyecta el reloj.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

func NewSigner(mgr *keys.Manager, ttl time.Duration, opts ...SignerOption) *Signer {
	s := &Signer{mgr: mgr, ttl: ttl, now: time.Now}
	if s.ttl <= 0 {
		s.ttl = 300 * time.Second
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SignDecision arma y firma el resultado. Propaga sin cambios
// keys.ErrSigningKeyUnavailable / keys.ErrKeyMismatch; no tiene modos de
// falla propios más allá de eso.
func (s *Signer) SignDecision(ctx context.Context, success bool, nonce string) (string, Result, error) {
	priv, kid, err := s.mgr.LoadSigningKey(ctx)
	if err != nil {
		return "", Result{}, err
	}

	now := s.now().UTC()
	res := Result{
		Success: success,
		Iat:     now.Unix(),
		Exp:     now.Add(s.ttl).Unix(),
		Nonce:   nonce,
		KID:     kid,
	}

	claims := jwtv5.MapClaims{
		"success": res.Success,
		"iat":     res.Iat,
		"exp":     res.Exp,
	}
	if res.Nonce != "" {
		claims["nonce"] = res.Nonce
	}

	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	tok.Header["typ"] = "JWT"

	signed, err := tok.SignedString(priv)
	if err != nil {
		return "", Result{}, err
	}
	return signed, res, nil
}
