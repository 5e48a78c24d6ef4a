// Package postgres provides the Postgres-backed record sink.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for harvested rows.
type Config struct {
	DSN                string
	RecordsTable       string
	RelationshipsTable string
	MaxConns           int32
	MinConns           int32
	MaxConnLifetime    time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store upserts harvested records and relationships into Postgres. Rows are
// keyed by (entity_type, natural_key), so re-delivery of the same record is
// an update, never a duplicate.
type Store struct {
	pool     execCloser
	records  string
	relTable string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	records, relTable, err := tableNames(cfg.RecordsTable, cfg.RelationshipsTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, records: records, relTable: relTable}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, recordsTable, relationshipsTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	records, relTable, err := tableNames(recordsTable, relationshipsTable)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, records: records, relTable: relTable}, nil
}

func tableNames(records, relationships string) (string, string, error) {
	if records == "" {
		records = "registry_entities"
	}
	if relationships == "" {
		relationships = "registry_relationships"
	}
	for _, name := range []string{records, relationships} {
		if !validTableName.MatchString(name) {
			return "", "", fmt.Errorf("invalid table name %q", name)
		}
	}
	return records, relationships, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertRecord writes one extracted record.
func (s *Store) UpsertRecord(ctx context.Context, rec harvester.ExtractedRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if rec.EntityType == "" || rec.NaturalKey == "" {
		return fmt.Errorf("entity type and natural key are required")
	}
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	entity_type,
	natural_key,
	fields,
	content_hash,
	source_url,
	extracted_at,
	incomplete
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (entity_type, natural_key) DO UPDATE SET
	fields = EXCLUDED.fields,
	content_hash = EXCLUDED.content_hash,
	source_url = EXCLUDED.source_url,
	extracted_at = EXCLUDED.extracted_at,
	incomplete = EXCLUDED.incomplete`, s.records)

	args := []any{
		string(rec.EntityType),
		rec.NaturalKey,
		fieldsJSON,
		rec.ContentHash,
		rec.SourceURL,
		rec.ExtractedAt,
		rec.Incomplete,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s record: %w", rec.EntityType, err)
	}
	return nil
}

// UpsertRelationship writes one relationship edge.
func (s *Store) UpsertRelationship(ctx context.Context, rel harvester.RelationshipRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if rel.SubjectID == "" || rel.ObjectID == "" || rel.Predicate == "" {
		return fmt.Errorf("subject, object, and predicate are required")
	}
	attrsJSON, err := json.Marshal(rel.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	subject_type,
	subject_id,
	predicate,
	object_type,
	object_id,
	attributes,
	extracted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (subject_type, subject_id, predicate, object_type, object_id) DO UPDATE SET
	attributes = EXCLUDED.attributes,
	extracted_at = EXCLUDED.extracted_at`, s.relTable)

	args := []any{
		string(rel.SubjectType),
		rel.SubjectID,
		rel.Predicate,
		string(rel.ObjectType),
		rel.ObjectID,
		attrsJSON,
		rel.ExtractedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s relationship: %w", rel.Predicate, err)
	}
	return nil
}
