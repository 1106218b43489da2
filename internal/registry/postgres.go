// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Exthost Contributors

package registry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/exthost/exthost/internal/extension"
)

// CodeNotMigrated marks queries against a database whose schema has not
// been created yet.
const CodeNotMigrated = "REGISTRY_NOT_MIGRATED"

// poolIface is the subset of pgxpool.Pool the store uses; pgxmock
// implements it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps manifests as JSONB rows. The schema is created by
// Migrator.
type PostgresStore struct {
	pool  poolIface
	close func()
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to the database at dsn.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, oops.In("registry").Code("REGISTRY_OPEN_FAILED").Errorf("postgres registry requires a DSN")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.In("registry").Code("REGISTRY_OPEN_FAILED").Hint("failed to connect to database").Wrap(err)
	}
	return &PostgresStore{pool: pool, close: pool.Close}, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, m *extension.Manifest) error {
	if err := checkSource(m); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return oops.In("registry").With("source", m.Source).Wrap(err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO extension_manifests (source, extension_id, version, runtime, manifest)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source) DO UPDATE
		 SET extension_id = $2, version = $3, runtime = $4, manifest = $5, updated_at = now()`,
		m.Source, m.ID, m.Version, m.Runtime, data)
	if err != nil {
		return wrapQueryError(err, "put manifest").With("source", m.Source).Wrap(err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, source string) (*extension.Manifest, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT manifest FROM extension_manifests WHERE source = $1`, source).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(source)
	}
	if err != nil {
		return nil, wrapQueryError(err, "get manifest").With("source", source).Wrap(err)
	}
	return decodeManifest(data)
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, source string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM extension_manifests WHERE source = $1`, source)
	if err != nil {
		return wrapQueryError(err, "delete manifest").With("source", source).Wrap(err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]*extension.Manifest, error) {
	rows, err := s.pool.Query(ctx, `SELECT manifest FROM extension_manifests ORDER BY source`)
	if err != nil {
		return nil, wrapQueryError(err, "list manifests").Wrap(err)
	}
	defer rows.Close()

	var out []*extension.Manifest
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, oops.In("registry").With("operation", "scan manifest row").Wrap(err)
		}
		m, err := decodeManifest(data)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("registry").With("operation", "iterate manifests").Wrap(err)
	}
	return out, nil
}

// FindCallable implements Store. The containment query is served by the
// GIN index on manifest.
func (s *PostgresStore) FindCallable(ctx context.Context, id string) (*extension.Manifest, extension.Role, error) {
	probe := func(role extension.Role) string {
		doc, _ := json.Marshal(map[string]any{string(role) + "s": []map[string]string{{"id": id}}})
		return string(doc)
	}

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT manifest FROM extension_manifests
		 WHERE manifest @> $1::jsonb OR manifest @> $2::jsonb OR manifest @> $3::jsonb
		 ORDER BY source LIMIT 1`,
		probe(extension.RoleTool), probe(extension.RoleResource), probe(extension.RolePrompt)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", oops.In("registry").With("callable", id).Wrapf(ErrNotFound, "callable %s", id)
	}
	if err != nil {
		return nil, "", wrapQueryError(err, "find callable").With("callable", id).Wrap(err)
	}

	m, err := decodeManifest(data)
	if err != nil {
		return nil, "", err
	}
	return findCallable([]*extension.Manifest{m}, id)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// wrapQueryError starts an error builder for a failed query, flagging a
// missing table as an unmigrated database.
func wrapQueryError(err error, operation string) oops.OopsErrorBuilder {
	b := oops.In("registry").With("operation", operation)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		b = b.Code(CodeNotMigrated).Hint("run 'exthost migrate up' to create the registry schema")
	}
	return b
}
