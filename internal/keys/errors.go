package keys

import "errors"

var (
	// ErrSigningKeyUnavailable: no hay secreto privado accesible (env
	// vacía en custody split, registro sin privada en colocated).
	ErrSigningKeyUnavailable = errors.New("signing_key_unavailable")

	// ErrKeyMismatch: el kid derivado de la privada no coincide con el
	// kid persistido junto a la pública.
	ErrKeyMismatch = errors.New("signing_key_mismatch")
)
