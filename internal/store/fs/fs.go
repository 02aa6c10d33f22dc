// Package fs implementa el KeyRecordStore sobre el filesystem, con
// escritura atómica y conditional put vía O_EXCL. Pensado para
// deployments sin base de datos.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dropDatabas3/policygate/internal/store/core"
)

type KeyStore struct {
	root string
	name string
}

// NewKeyStore crea el store bajo root; el registro vive en
// <root>/keys/<name>.json.
func NewKeyStore(root, name string) *KeyStore {
	if name == "" {
		name = "signing-key"
	}
	return &KeyStore{root: root, name: name}
}

func (s *KeyStore) path() string {
	return filepath.Join(s.root, "keys", s.name+".json")
}

func (s *KeyStore) Get(ctx context.Context) (*core.KeyRecord, error) {
	b, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("fs: read %s: %w", s.path(), err)
	}
	var rec core.KeyRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("fs: decode %s: %w", s.path(), err)
	}
	return &rec, nil
}

// PutIfAbsent escribe el registro solo si el archivo no existe todavía.
// O_EXCL hace de compare-and-swap: el primer proceso en crear el archivo
// gana, el resto recibe ErrConflict.
func (s *KeyStore) PutIfAbsent(ctx context.Context, rec *core.KeyRecord) error {
	path := s.path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fs: mkdir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("fs: encode record: %w", err)
	}

	// Escribir a tmp + fsync, y recién después el create exclusivo vía
	// link. Así el contenido nunca se observa a medio escribir.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("fs: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("fs: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fs: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fs: close temp: %w", err)
	}
	_ = os.Chmod(tmpPath, fs.FileMode(0o600))

	// Link falla con EEXIST si el destino ya existe: ese es el CAS.
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return core.ErrConflict
		}
		return fmt.Errorf("fs: link: %w", err)
	}
	return nil
}

func (s *KeyStore) Ping(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(s.root, "keys"), 0o755); err != nil {
		return fmt.Errorf("fs: root no escribible: %w", err)
	}
	return nil
}
