package keys

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/policygate/internal/observability/logger"
	"github.com/dropDatabas3/policygate/internal/security/secretbox"
	"github.com/dropDatabas3/policygate/internal/store/core"
)

// Custody define dónde vive la mitad privada.
type Custody string

const (
	// CustodySplit: la privada se entrega SOLO fuera de banda
	// (SIGNING_PRIVATE_JWK); el store durable nunca la ve. Default.
	CustodySplit Custody = "split"
	// CustodyColocated: la privada se persiste cifrada (secretbox) junto
	// al registro público. Acopla la confidencialidad de la clave al
	// mismo límite de acceso que los datos de la aplicación.
	CustodyColocated Custody = "colocated"
)

// SecretSource resuelve el JWK privado out-of-band (custody split).
type SecretSource interface {
	// PrivateJWK devuelve el JWK privado serializado, o ok=false si el
	// secreto no está configurado.
	PrivateJWK() (string, bool)
}

// EnvSecretSource lee SIGNING_PRIVATE_JWK del entorno.
type EnvSecretSource struct{}

func (EnvSecretSource) PrivateJWK() (string, bool) {
	v := strings.TrimSpace(os.Getenv("SIGNING_PRIVATE_JWK"))
	return v, v != ""
}

// Manager es el dueño del ciclo de vida de la clave de firma: genera el
// par una sola vez, persiste la mitad pública + kid en el KV durable y
// resuelve la privada desde su fuente según la custodia configurada.
//
// Estado read-mostly: una escritura durable en la primera generación y
// nada más. No hay rotación automática.
type Manager struct {
	store   core.KeyRecordStore
	custody Custody
	secrets SecretSource

	mu        sync.RWMutex
	signingKey *rsa.PrivateKey
	signingKID string
}

func NewManager(store core.KeyRecordStore, custody Custody, secrets SecretSource) *Manager {
	if secrets == nil {
		secrets = EnvSecretSource{}
	}
	if custody == "" {
		custody = CustodySplit
	}
	return &Manager{store: store, custody: custody, secrets: secrets}
}

// EnsureKeyPair devuelve el registro público actual {kid, public JWK}.
// Si no existe, genera el par y lo persiste con un conditional put: si dos
// procesos generan a la vez, exactamente uno gana y el otro descarta lo
// suyo y relee al ganador — nunca quedan mitades cruzadas.
func (m *Manager) EnsureKeyPair(ctx context.Context) (*core.KeyRecord, error) {
	rec, err := m.store.Get(ctx)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("keys: leer registro: %w", err)
	}

	priv, err := GenerateRSA()
	if err != nil {
		return nil, fmt.Errorf("keys: generar par: %w", err)
	}
	pubJWK := NewPublicJWK(&priv.PublicKey)
	pubJSON, err := json.Marshal(pubJWK)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal public jwk: %w", err)
	}

	newRec := &core.KeyRecord{
		KID:       pubJWK.Kid,
		Alg:       AlgRS256,
		PublicJWK: pubJSON,
		CreatedAt: time.Now().UTC(),
	}

	privJSON, err := json.Marshal(NewPrivateJWK(priv))
	if err != nil {
		return nil, fmt.Errorf("keys: marshal private jwk: %w", err)
	}

	if m.custody == CustodyColocated {
		enc, err := secretbox.Encrypt(string(privJSON))
		if err != nil {
			return nil, fmt.Errorf("keys: cifrar privada: %w", err)
		}
		newRec.EncPrivateJWK = enc
	}

	if err := m.store.PutIfAbsent(ctx, newRec); err != nil {
		if errors.Is(err, core.ErrConflict) {
			// Otro proceso ganó la carrera: descartamos nuestro par y
			// usamos el suyo.
			winner, err2 := m.store.Get(ctx)
			if err2 != nil {
				return nil, fmt.Errorf("keys: releer ganador: %w", err2)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("keys: persistir registro: %w", err)
	}

	if m.custody == CustodySplit {
		// Canal out-of-band: la privada se expone UNA vez acá y en ningún
		// otro lado. El operador debe guardarla en SIGNING_PRIVATE_JWK.
		logger.Named("keys").Warn("signing key generada; guardar el JWK privado en SIGNING_PRIVATE_JWK",
			logger.KID(newRec.KID),
			logger.String("private_jwk", string(privJSON)),
		)
	}

	// Ya tenemos la privada en mano: precalentar el cache de firma.
	m.mu.Lock()
	m.signingKey = priv
	m.signingKID = newRec.KID
	m.mu.Unlock()

	return newRec, nil
}

// LoadSigningKey resuelve la clave privada de firma y la cruza contra el
// kid persistido. ErrSigningKeyUnavailable si el secreto no está;
// ErrKeyMismatch si la privada no corresponde a la pública registrada.
func (m *Manager) LoadSigningKey(ctx context.Context) (*rsa.PrivateKey, string, error) {
	m.mu.RLock()
	if m.signingKey != nil {
		priv, kid := m.signingKey, m.signingKID
		m.mu.RUnlock()
		return priv, kid, nil
	}
	m.mu.RUnlock()

	rec, err := m.store.Get(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, "", ErrSigningKeyUnavailable
		}
		return nil, "", fmt.Errorf("keys: leer registro: %w", err)
	}

	var privJSON string
	switch m.custody {
	case CustodyColocated:
		if rec.EncPrivateJWK == "" {
			return nil, "", ErrSigningKeyUnavailable
		}
		privJSON, err = secretbox.Decrypt(rec.EncPrivateJWK)
		if err != nil {
			return nil, "", fmt.Errorf("keys: descifrar privada: %w", err)
		}
	default:
		var ok bool
		privJSON, ok = m.secrets.PrivateJWK()
		if !ok {
			return nil, "", ErrSigningKeyUnavailable
		}
	}

	priv, err := ParseRSAPrivateJWK([]byte(privJSON))
	if err != nil {
		return nil, "", fmt.Errorf("keys: parsear jwk privado: %w", err)
	}

	// Cross-check: el kid derivado de la privada tiene que coincidir con
	// el persistido. Si no, la config apunta a otra clave.
	derived := KIDFromPublicKey(&priv.PublicKey)
	if derived != rec.KID {
		return nil, "", ErrKeyMismatch
	}

	m.mu.Lock()
	m.signingKey = priv
	m.signingKID = rec.KID
	m.mu.Unlock()

	return priv, rec.KID, nil
}

// Custody expone la custodia configurada (para readyz/diagnóstico).
func (m *Manager) Custody() Custody { return m.custody }
