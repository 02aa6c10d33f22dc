package core

import "context"

// KeyRecordStore es el store key-value durable de la clave de firma.
// Hay un único registro por deployment, bajo un nombre fijo.
type KeyRecordStore interface {
	// Get devuelve el registro actual. ErrNotFound si nunca se generó.
	Get(ctx context.Context) (*KeyRecord, error)

	// PutIfAbsent persiste el registro SOLO si no existe ya uno
	// (conditional put). Devuelve ErrConflict si otro proceso ganó la
	// carrera; el caller debe releer con Get y quedarse con el ganador.
	PutIfAbsent(ctx context.Context, rec *KeyRecord) error
}

// TrainingStatusStore es el colaborador externo de estado de capacitación.
// Solo lectura desde el evaluador; ErrNotFound cuando la identidad no
// tiene registro (eso NO es un error de protocolo, es decisión false).
type TrainingStatusStore interface {
	GetStatus(ctx context.Context, identityKey string) (TrainingStatus, error)
}

// Pinger lo implementan los stores que pueden reportar salud (readyz).
type Pinger interface {
	Ping(ctx context.Context) error
}
