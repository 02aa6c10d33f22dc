package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dropDatabas3/policygate/internal/store/core"
)

// StatusStore lee el estado de training desde <root>/training_status.json
// (mapa identity-key → status). El archivo se recarga cuando cambia su
// mtime, así el operador puede editarlo sin reiniciar el gateway.
type StatusStore struct {
	root string

	mu     sync.Mutex
	mtime  int64
	loaded map[string]core.TrainingStatus
}

func NewStatusStore(root string) *StatusStore {
	return &StatusStore{root: root}
}

func (s *StatusStore) path() string {
	return filepath.Join(s.root, "training_status.json")
}

func (s *StatusStore) GetStatus(ctx context.Context, identityKey string) (core.TrainingStatus, error) {
	m, err := s.snapshot()
	if err != nil {
		return "", err
	}
	st, ok := m[strings.ToLower(identityKey)]
	if !ok {
		return "", core.ErrNotFound
	}
	return st, nil
}

func (s *StatusStore) Ping(ctx context.Context) error {
	if _, err := s.snapshot(); err != nil {
		return err
	}
	return nil
}

func (s *StatusStore) snapshot() (map[string]core.TrainingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := os.Stat(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Sin archivo no hay identidades conocidas: todo es deny.
			return map[string]core.TrainingStatus{}, nil
		}
		return nil, fmt.Errorf("fs: stat %s: %w", s.path(), err)
	}

	if s.loaded != nil && st.ModTime().UnixNano() == s.mtime {
		return s.loaded, nil
	}

	b, err := os.ReadFile(s.path())
	if err != nil {
		return nil, fmt.Errorf("fs: read %s: %w", s.path(), err)
	}
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("fs: decode %s: %w", s.path(), err)
	}

	m := make(map[string]core.TrainingStatus, len(raw))
	for k, v := range raw {
		m[strings.ToLower(strings.TrimSpace(k))] = core.TrainingStatus(strings.ToLower(strings.TrimSpace(v)))
	}
	s.loaded = m
	s.mtime = st.ModTime().UnixNano()
	return m, nil
}
