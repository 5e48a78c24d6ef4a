package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

func TestUpsertRecordWritesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "registry_entities", "registry_relationships")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := harvester.ExtractedRecord{
		EntityType:  harvester.EntityStandard,
		NaturalKey:  "EC0217",
		Fields:      map[string]string{"code": "EC0217"},
		ContentHash: "abc123",
		SourceURL:   "https://conocer.gob.mx/RENEC/controlador.do?comp=EC&idEstandar=217",
		ExtractedAt: now,
	}

	mock.ExpectExec("INSERT INTO registry_entities").
		WithArgs(
			"ec_standard",
			rec.NaturalKey,
			[]byte(`{"code":"EC0217"}`),
			rec.ContentHash,
			rec.SourceURL,
			rec.ExtractedAt,
			false,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertRecord(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRecordRequiresKey(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "", "")
	require.NoError(t, err)

	err = store.UpsertRecord(context.Background(), harvester.ExtractedRecord{EntityType: harvester.EntityStandard})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRelationshipWritesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "", "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rel := harvester.RelationshipRecord{
		SubjectType: harvester.EntityCertifier,
		SubjectID:   "OC-042",
		Predicate:   "accredits",
		ObjectType:  harvester.EntityStandard,
		ObjectID:    "EC0217",
		ExtractedAt: now,
	}

	mock.ExpectExec("INSERT INTO registry_relationships").
		WithArgs(
			"certifier",
			rel.SubjectID,
			rel.Predicate,
			"ec_standard",
			rel.ObjectID,
			[]byte(`null`),
			rel.ExtractedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertRelationship(context.Background(), rel))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolRejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "registry; drop table", "")
	require.Error(t, err)
}
