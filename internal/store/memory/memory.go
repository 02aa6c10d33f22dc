// Package memory implementa los stores en memoria. Útil para desarrollo
// y testing; nada sobrevive al proceso.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/dropDatabas3/policygate/internal/store/core"
)

// KeyStore implementa core.KeyRecordStore en memoria.
type KeyStore struct {
	mu  sync.Mutex
	rec *core.KeyRecord
}

func NewKeyStore() *KeyStore { return &KeyStore{} }

func (s *KeyStore) Get(ctx context.Context) (*core.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, core.ErrNotFound
	}
	cp := *s.rec
	return &cp, nil
}

func (s *KeyStore) PutIfAbsent(ctx context.Context, rec *core.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		return core.ErrConflict
	}
	cp := *rec
	s.rec = &cp
	return nil
}

func (s *KeyStore) Ping(ctx context.Context) error { return nil }

// StatusStore implementa core.TrainingStatusStore sobre un map fijo.
// Sirve como seed local y como fake en tests.
type StatusStore struct {
	mu   sync.RWMutex
	data map[string]core.TrainingStatus
}

func NewStatusStore(seed map[string]core.TrainingStatus) *StatusStore {
	data := make(map[string]core.TrainingStatus, len(seed))
	for k, v := range seed {
		data[strings.ToLower(k)] = v
	}
	return &StatusStore{data: data}
}

func (s *StatusStore) GetStatus(ctx context.Context, identityKey string) (core.TrainingStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[strings.ToLower(identityKey)]
	if !ok {
		return "", core.ErrNotFound
	}
	return st, nil
}

// Set actualiza el estado de una identidad (seeds en tests).
func (s *StatusStore) Set(identityKey string, st core.TrainingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[strings.ToLower(identityKey)] = st
}

func (s *StatusStore) Ping(ctx context.Context) error { return nil }
