package token

import "errors"

var (
	// ErrMalformedToken: falla estructural (segmentos, base64, JSON).
	ErrMalformedToken = errors.New("malformed_token")

	// ErrSignatureInvalid: la firma no verifica contra la clave resuelta.
	ErrSignatureInvalid = errors.New("signature_invalid")

	// ErrTokenExpired: exp en el pasado al momento de verificar.
	ErrTokenExpired = errors.New("token_expired")

	// ErrInvalidClaims: el payload verificó firma pero no cumple el
	// esquema estricto (email inválido, aud/iss que no corresponden,
	// nbf futuro, campos faltantes).
	ErrInvalidClaims = errors.New("invalid_claims")
)
