package harvester

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the page plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Renderer executes a page with JavaScript enabled and returns the DOM
// snapshot together with the network requests observed while rendering.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (Page, error)
}

// DetailRequest asks the scheduler to fetch a detail page on behalf of the
// driver that produced it. The continuation travels with the request.
type DetailRequest struct {
	URL          string
	Continuation Continuation
}

// ListingResult is everything a driver extracted from one listing page.
type ListingResult struct {
	Details []DetailRequest
	// NextPageURL is empty when no pagination selector matched.
	NextPageURL string
	// Records holds rows forwarded straight from the listing: complete rows
	// for entities without a detail phase, and rows whose identifier could
	// not be resolved (marked Incomplete).
	Records []ExtractedRecord
	// Relationships extracted from the listing itself.
	Relationships []RelationshipRecord
}

// DetailResult is the outcome of parsing one detail page.
type DetailResult struct {
	Record        ExtractedRecord
	Relationships []RelationshipRecord
}

// Driver extracts records for one entity type. Implementations hold no
// cross-request mutable state beyond run counters, so a single driver value
// may parse many pages concurrently.
type Driver interface {
	EntityType() EntityType
	StartURLs() []string
	ParseListing(page Page) (ListingResult, error)
	ParseDetail(page Page, cont Continuation) (DetailResult, error)
}

// Sink receives surviving records. Upserts must be idempotent under
// re-delivery of the same natural key.
type Sink interface {
	UpsertRecord(ctx context.Context, rec ExtractedRecord) error
	UpsertRelationship(ctx context.Context, rel RelationshipRecord) error
}

// Fingerprinter computes the content hash of a record's field map.
type Fingerprinter interface {
	Fingerprint(fields map[string]string) string
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes record events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (injectable for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
