package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/policygate/internal/jwks"
)

// KeyResolver resuelve la clave pública de verificación por kid
// (lo implementa jwks.Resolver).
type KeyResolver interface {
	ResolveVerificationKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// Verifier valida assertions entrantes del plano de control: firma RS256
// contra el key-set remoto, expiración y esquema estricto de claims.
//
// Función pura de (token, key-set vigente, reloj inyectado); el único
// estado compartido es el cache del resolver.
type Verifier struct {
	resolver KeyResolver
	audience string
	issuer   string
	now      func() time.Time
}

type VerifierOption func(*Verifier)

// WithVerifierClock inyecta el reloj (tests de expiración).
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// WithIssuer exige un iss exacto en los tokens entrantes.
func WithIssuer(iss string) VerifierOption {
	return func(v *Verifier) { v.issuer = iss }
}

func NewVerifier(resolver KeyResolver, audience string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		resolver: resolver,
		audience: audience,
		now:      time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify parsea y verifica un compact token entrante y devuelve los
// claims tipados. Todo camino de error es deny: ErrMalformedToken,
// ErrSignatureInvalid, ErrTokenExpired, ErrInvalidClaims, o los del
// resolver (jwks.ErrKeyNotFound / jwks.ErrUpstreamFetch) sin envolver.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	keyfunc := func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: falta kid en header", ErrMalformedToken)
		}
		return v.resolver.ResolveVerificationKey(ctx, kid)
	}

	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithTimeFunc(v.now),
		jwtv5.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwtv5.WithAudience(v.audience))
	}
	if v.issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(v.issuer))
	}

	tok, err := jwtv5.NewParser(opts...).Parse(raw, keyfunc)
	if err != nil {
		return nil, mapJWTError(err)
	}

	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: claims no son objeto", ErrInvalidClaims)
	}
	return claimsFromMap(mc)
}

// mapJWTError traduce los errores de la librería (y los del keyfunc, que
// viajan envueltos) a la taxonomía del protocolo.
func mapJWTError(err error) error {
	switch {
	// Errores propios del resolver pasan tal cual: el orquestador los
	// reporta con su propio nombre.
	case errors.Is(err, jwks.ErrKeyNotFound),
		errors.Is(err, jwks.ErrUpstreamFetch):
		return err
	case errors.Is(err, ErrMalformedToken):
		return err
	case errors.Is(err, jwtv5.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	default:
		// aud/iss que no matchean, nbf futuro, exp ausente, etc.
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}
