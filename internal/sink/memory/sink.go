// Package memory provides an in-memory sink for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// Sink keeps upserted rows in process, keyed the same way the Postgres sink
// keys them, so dry runs show the exact row set a real run would write.
type Sink struct {
	mu            sync.Mutex
	records       map[string]harvester.ExtractedRecord
	relationships map[string]harvester.RelationshipRecord
}

// New constructs an empty Sink.
func New() *Sink {
	return &Sink{
		records:       make(map[string]harvester.ExtractedRecord),
		relationships: make(map[string]harvester.RelationshipRecord),
	}
}

// UpsertRecord stores or replaces one record.
func (s *Sink) UpsertRecord(_ context.Context, rec harvester.ExtractedRecord) error {
	if rec.EntityType == "" || rec.NaturalKey == "" {
		return fmt.Errorf("entity type and natural key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[string(rec.EntityType)+"/"+rec.NaturalKey] = rec
	return nil
}

// UpsertRelationship stores or replaces one relationship edge.
func (s *Sink) UpsertRelationship(_ context.Context, rel harvester.RelationshipRecord) error {
	if rel.SubjectID == "" || rel.ObjectID == "" || rel.Predicate == "" {
		return fmt.Errorf("subject, object, and predicate are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%s/%s/%s", rel.SubjectType, rel.SubjectID, rel.Predicate, rel.ObjectType, rel.ObjectID)
	s.relationships[key] = rel
	return nil
}

// Records returns a copy of the stored records.
func (s *Sink) Records() []harvester.ExtractedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]harvester.ExtractedRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

// Relationships returns a copy of the stored relationship edges.
func (s *Sink) Relationships() []harvester.RelationshipRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]harvester.RelationshipRecord, 0, len(s.relationships))
	for _, rel := range s.relationships {
		out = append(out, rel)
	}
	return out
}
