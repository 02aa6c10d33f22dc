package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

const (
	// AlgRS256: RSA 2048, PKCS#1 v1.5, SHA-256. Es lo que el plano de
	// control espera en ambas direcciones.
	AlgRS256 = "RS256"

	rsaBits = 2048

	// kidMaxHex acota el kid a los primeros 64 hex chars del digest.
	kidMaxHex = 64
)

// PublicJWK es la representación JWK de la mitad pública (RFC 7517, kty RSA).
type PublicJWK struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// PrivateJWK agrega los parámetros privados CRT al JWK público.
type PrivateJWK struct {
	PublicJWK
	D  string `json:"d"`
	P  string `json:"p,omitempty"`
	Q  string `json:"q,omitempty"`
	Dp string `json:"dp,omitempty"`
	Dq string `json:"dq,omitempty"`
	Qi string `json:"qi,omitempty"`
}

// GenerateRSA genera el par de firma del gateway (RSA-2048).
func GenerateRSA() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, rsaBits)
}

// NewPublicJWK arma el JWK público (con kid derivado) a partir de la clave.
func NewPublicJWK(pub *rsa.PublicKey) PublicJWK {
	j := PublicJWK{
		Kty: "RSA",
		N:   b64BigInt(pub.N),
		E:   b64Int(pub.E),
		Alg: AlgRS256,
		Use: "sig",
	}
	j.Kid = KIDFromPublicKey(pub)
	return j
}

// NewPrivateJWK arma el JWK privado completo (incluye kid).
func NewPrivateJWK(priv *rsa.PrivateKey) PrivateJWK {
	priv.Precompute()
	j := PrivateJWK{
		PublicJWK: NewPublicJWK(&priv.PublicKey),
		D:         b64BigInt(priv.D),
	}
	if len(priv.Primes) >= 2 {
		j.P = b64BigInt(priv.Primes[0])
		j.Q = b64BigInt(priv.Primes[1])
	}
	if priv.Precomputed.Dp != nil {
		j.Dp = b64BigInt(priv.Precomputed.Dp)
		j.Dq = b64BigInt(priv.Precomputed.Dq)
		j.Qi = b64BigInt(priv.Precomputed.Qinv)
	}
	return j
}

// KIDFromPublicKey deriva el key id determinístico: digest SHA-1 en hex
// sobre el JSON canónico del JWK público (subconjunto e/kty/n ordenado,
// estilo RFC 7638), acotado a los primeros 64 caracteres.
func KIDFromPublicKey(pub *rsa.PublicKey) string {
	// json.Marshal de struct emite los campos en orden de declaración:
	// e, kty, n — ese ES el orden lexicográfico canónico.
	canonical, _ := json.Marshal(struct {
		E   string `json:"e"`
		Kty string `json:"kty"`
		N   string `json:"n"`
	}{
		E:   b64Int(pub.E),
		Kty: "RSA",
		N:   b64BigInt(pub.N),
	})
	sum := sha1.Sum(canonical)
	kid := hex.EncodeToString(sum[:])
	if len(kid) > kidMaxHex {
		kid = kid[:kidMaxHex]
	}
	return kid
}

// ParseRSAPublicJWK decodifica un JWK público RSA a *rsa.PublicKey.
func ParseRSAPublicJWK(data []byte) (*rsa.PublicKey, error) {
	var j PublicJWK
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("jwk: %w", err)
	}
	return j.PublicKey()
}

// PublicKey materializa el *rsa.PublicKey desde el JWK.
func (j PublicJWK) PublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("jwk: kty no soportado %q", j.Kty)
	}
	n, err := parseB64BigInt(j.N)
	if err != nil {
		return nil, fmt.Errorf("jwk: n inválido: %w", err)
	}
	e, err := parseB64BigInt(j.E)
	if err != nil {
		return nil, fmt.Errorf("jwk: e inválido: %w", err)
	}
	if !e.IsInt64() || e.Int64() <= 1 {
		return nil, errors.New("jwk: exponente inválido")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// ParseRSAPrivateJWK decodifica un JWK privado RSA a *rsa.PrivateKey.
func ParseRSAPrivateJWK(data []byte) (*rsa.PrivateKey, error) {
	var j PrivateJWK
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("jwk: %w", err)
	}
	pub, err := j.PublicJWK.PublicKey()
	if err != nil {
		return nil, err
	}
	if j.D == "" {
		return nil, errors.New("jwk: falta parámetro d")
	}
	d, err := parseB64BigInt(j.D)
	if err != nil {
		return nil, fmt.Errorf("jwk: d inválido: %w", err)
	}
	priv := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         d,
	}
	if j.P != "" && j.Q != "" {
		p, err := parseB64BigInt(j.P)
		if err != nil {
			return nil, fmt.Errorf("jwk: p inválido: %w", err)
		}
		q, err := parseB64BigInt(j.Q)
		if err != nil {
			return nil, fmt.Errorf("jwk: q inválido: %w", err)
		}
		priv.Primes = []*big.Int{p, q}
		if err := priv.Validate(); err != nil {
			return nil, fmt.Errorf("jwk: clave inconsistente: %w", err)
		}
		priv.Precompute()
	}
	return priv, nil
}

func b64BigInt(v *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(v.Bytes())
}

func b64Int(v int) string {
	b := big.NewInt(int64(v))
	return base64.RawURLEncoding.EncodeToString(b.Bytes())
}

func parseB64BigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("vacío")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
