package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Identity es el bloque de identidad dentro de los claims entrantes.
type Identity struct {
	Email string `json:"email"`
}

// Claims es el esquema estricto del payload entrante. Los claims llegan
// como JSON dinámico; acá se validan tipos y campos requeridos ANTES de
// usar cualquier valor, así un "campo opcional undefined" se vuelve un
// error tipado y no un pánico a mitad de camino.
type Claims struct {
	Identity Identity `json:"identity"`
	Exp      int64    `json:"exp"`
	Iat      int64    `json:"iat,omitempty"`
	Nonce    string   `json:"nonce,omitempty"`
	Aud      string   `json:"aud,omitempty"`
	Iss      string   `json:"iss,omitempty"`
}

// IdentityKey normaliza el email a su clave de identidad: local-part en
// minúsculas. Es la clave con la que se consulta el training status.
func (c *Claims) IdentityKey() string {
	email := strings.TrimSpace(c.Identity.Email)
	if i := strings.IndexByte(email, '@'); i >= 0 {
		email = email[:i]
	}
	return strings.ToLower(email)
}

// Header es el header decodificado de un compact token.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Typ string `json:"typ,omitempty"`
}

// Parse hace SOLO el parseo estructural de un compact token: exactamente
// tres segmentos separados por punto, header y payload base64url con JSON
// válido. No verifica firma ni expiración.
func Parse(tok string) (*Header, map[string]any, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return nil, nil, fmt.Errorf("%w: se esperan 3 segmentos, hay %d", ErrMalformedToken, len(parts))
	}

	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: header base64: %v", ErrMalformedToken, err)
	}
	var h Header
	if err := json.Unmarshal(hb, &h); err != nil {
		return nil, nil, fmt.Errorf("%w: header json: %v", ErrMalformedToken, err)
	}

	pb, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: payload base64: %v", ErrMalformedToken, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(pb, &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: payload json: %v", ErrMalformedToken, err)
	}

	return &h, payload, nil
}

// claimsFromMap valida el esquema estricto sobre los MapClaims ya
// verificados criptográficamente.
func claimsFromMap(mc jwtv5.MapClaims) (*Claims, error) {
	var c Claims

	idRaw, ok := mc["identity"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: falta identity", ErrInvalidClaims)
	}
	email, ok := idRaw["email"].(string)
	if !ok || strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: falta identity.email", ErrInvalidClaims)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: identity.email inválido", ErrInvalidClaims)
	}
	c.Identity.Email = email

	exp, ok := mc["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: falta exp numérico", ErrInvalidClaims)
	}
	c.Exp = int64(exp)

	if iat, ok := mc["iat"].(float64); ok {
		c.Iat = int64(iat)
	}
	if nonce, ok := mc["nonce"].(string); ok {
		c.Nonce = nonce
	}
	if aud, ok := mc["aud"].(string); ok {
		c.Aud = aud
	}
	if iss, ok := mc["iss"].(string); ok {
		c.Iss = iss
	}

	return &c, nil
}
