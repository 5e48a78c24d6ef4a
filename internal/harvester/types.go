// Package harvester defines core types shared across subsystems.
package harvester

import (
	"net/http"
	"time"
)

// Mode selects how a run traverses the portal.
type Mode string

// Run modes.
const (
	// ModeSiteMap walks the site breadth-first from one root, recording
	// structure and any API-shaped endpoints surfaced while rendering.
	ModeSiteMap Mode = "sitemap"
	// ModeHarvest starts from each driver's entry points and hands every
	// fetched page to the owning driver.
	ModeHarvest Mode = "harvest"
)

// EntityType identifies the registry entity a record belongs to.
type EntityType string

// Entity types harvested from the registry.
const (
	EntityStandard  EntityType = "ec_standard"
	EntityCertifier EntityType = "certifier"
	EntityCenter    EntityType = "evaluation_center"
	EntitySector    EntityType = "sector"
	EntityCommittee EntityType = "committee"
)

// TargetKind distinguishes what a queued target expects from its page.
type TargetKind string

// Target kinds.
const (
	KindPage    TargetKind = "page"    // raw page in sitemap mode
	KindListing TargetKind = "listing" // listing page owned by a driver
	KindDetail  TargetKind = "detail"  // detail page owned by a driver
)

// Continuation carries listing-derived fields to the matching detail request.
// It is never mutated after creation; Merge returns a fresh map.
type Continuation map[string]string

// Merge overlays detail fields on top of the continuation. Continuation values
// only fill gaps; detail-page values win on conflict.
func (c Continuation) Merge(detail map[string]string) map[string]string {
	out := make(map[string]string, len(c)+len(detail))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range detail {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// CrawlTarget is one unit of work for the scheduler's queue.
type CrawlTarget struct {
	URL          string
	Depth        int
	ParentURL    string
	Mode         Mode
	EntityType   EntityType
	Kind         TargetKind
	Continuation Continuation
	RetryCount   int
}

// NetworkRequest is one request observed by the render collaborator.
type NetworkRequest struct {
	Method       string `json:"method"`
	URL          string `json:"url"`
	ResourceType string `json:"resource_type"`
}

// Page is the result of fetching or rendering one URL.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
	// Requests holds the network trace when the page was rendered.
	Requests []NetworkRequest
}

// ExtractedRecord is one structured record produced by a driver.
type ExtractedRecord struct {
	EntityType  EntityType        `json:"entity_type"`
	NaturalKey  string            `json:"natural_key"`
	Fields      map[string]string `json:"fields"`
	ContentHash string            `json:"content_hash"`
	SourceURL   string            `json:"source_url"`
	ExtractedAt time.Time         `json:"extracted_at"`
	// Incomplete marks listing rows forwarded without a resolvable detail link.
	Incomplete bool `json:"incomplete,omitempty"`
}

// RelationshipRecord links two registry entities, e.g. a certifying body
// accrediting a standard.
type RelationshipRecord struct {
	SubjectType EntityType        `json:"subject_type"`
	SubjectID   string            `json:"subject_id"`
	Predicate   string            `json:"predicate"`
	ObjectType  EntityType        `json:"object_type"`
	ObjectID    string            `json:"object_id"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// SiteMapEntry records one visited URL in sitemap mode.
type SiteMapEntry struct {
	URL         string `json:"url"`
	URLHash     string `json:"url_hash"`
	Title       string `json:"title"`
	Depth       int    `json:"depth"`
	ParentURL   string `json:"parent_url"`
	StatusCode  int    `json:"status_code"`
	ContentHash string `json:"content_hash"`
}

// RunSummary is produced at the end of every run, whatever happened mid-run.
type RunSummary struct {
	RunID            string         `json:"run_id"`
	Mode             Mode           `json:"mode"`
	Started          time.Time      `json:"started_at"`
	Finished         time.Time      `json:"finished_at"`
	PagesFetched     int            `json:"pages_fetched"`
	RecordsExtracted int            `json:"records_extracted"`
	RecordsForwarded int            `json:"records_forwarded"`
	Relationships    int            `json:"relationships"`
	Retries          int            `json:"retries"`
	Dropped          map[string]int `json:"dropped"`
	OpenCircuits     []string       `json:"open_circuits"`
}

// Drop reasons tallied in RunSummary.Dropped.
const (
	DropFetch       = "fetch_error"
	DropCircuitOpen = "circuit_open"
	DropRateLimited = "rate_limited"
	DropOffDomain   = "off_domain"
	DropExtension   = "bad_extension"
	DropVisited     = "already_visited"
	DropExtraction  = "extraction_error"
	DropValidation  = "validation_error"
	DropDuplicate   = "duplicate"
	DropQueueFull   = "queue_full"
	DropSink        = "sink_error"
)
