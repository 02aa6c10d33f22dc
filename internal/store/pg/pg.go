// Package pg implementa los stores sobre PostgreSQL con pgxpool:
// el registro durable de la clave de firma y las consultas read-only de
// training status.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/policygate/internal/store/core"
)

type Store struct {
	pool *pgxpool.Pool
	// recordName: nombre fijo del (único) registro de clave del deployment.
	recordName string
}

func New(ctx context.Context, dsn, recordName string) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}
	if recordName == "" {
		recordName = "signing-key"
	}
	return &Store{pool: pool, recordName: recordName}, nil
}

// Pool expone el pool interno (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// ───────── core.KeyRecordStore ─────────

func (s *Store) Get(ctx context.Context) (*core.KeyRecord, error) {
	const q = `SELECT kid, alg, public_jwk, COALESCE(enc_private_jwk, ''), created_at
	           FROM signing_keys WHERE name = $1`
	var rec core.KeyRecord
	err := s.pool.QueryRow(ctx, q, s.recordName).Scan(
		&rec.KID, &rec.Alg, &rec.PublicJWK, &rec.EncPrivateJWK, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("pg: get key record: %w", err)
	}
	return &rec, nil
}

// PutIfAbsent usa ON CONFLICT DO NOTHING como conditional put: si la fila
// ya existe, nadie pisa a nadie y devolvemos ErrConflict.
func (s *Store) PutIfAbsent(ctx context.Context, rec *core.KeyRecord) error {
	const q = `INSERT INTO signing_keys (name, kid, alg, public_jwk, enc_private_jwk, created_at)
	           VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	           ON CONFLICT (name) DO NOTHING`
	tag, err := s.pool.Exec(ctx, q,
		s.recordName, rec.KID, rec.Alg, rec.PublicJWK, rec.EncPrivateJWK, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("pg: put key record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConflict
	}
	return nil
}

// ───────── core.TrainingStatusStore ─────────

func (s *Store) GetStatus(ctx context.Context, identityKey string) (core.TrainingStatus, error) {
	const q = `SELECT status FROM training_status WHERE identity = $1`
	var st string
	err := s.pool.QueryRow(ctx, q, identityKey).Scan(&st)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", core.ErrNotFound
		}
		return "", fmt.Errorf("pg: get training status: %w", err)
	}
	return core.TrainingStatus(st), nil
}
