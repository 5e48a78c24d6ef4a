// Package scheduler runs the harvest and discovery pipelines: a bounded
// worker pool draining the frontier queue, routing pages to the entity
// drivers and surviving records to the sink.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/drivers"
	"github.com/conocermx/renec-harvester/internal/fingerprint"
	"github.com/conocermx/renec-harvester/internal/harvester"
	"github.com/conocermx/renec-harvester/internal/metrics"
	"github.com/conocermx/renec-harvester/internal/resilience"
)

// Config controls Scheduler behavior.
type Config struct {
	Workers          int
	QueueDepth       int
	MaxDepth         int
	VisitedCacheSize int
	SnapshotPrefix   string
	Topic            string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 4096
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 6
	}
	if c.SnapshotPrefix == "" {
		c.SnapshotPrefix = "sitemaps"
	}
	if c.Topic == "" {
		c.Topic = "harvest-events"
	}
	return c
}

// Scheduler seeds the frontier, runs the pool, and produces the run summary.
// Breaker, renderer, dedup, blob store and publisher are optional; the
// scheduler degrades to fetch-extract-sink when they are absent.
type Scheduler struct {
	cfg       Config
	fetcher   harvester.Fetcher
	renderer  harvester.Renderer
	registry  *drivers.Registry
	sink      harvester.Sink
	dedup     *resilience.DedupFilter
	breaker   *resilience.CircuitBreaker
	retry     *RetryPolicy
	admission *Admission
	blobs     harvester.BlobStore
	publisher harvester.Publisher
	clock     harvester.Clock
	ids       harvester.IDGenerator
	logger    *zap.Logger

	queue   *frontier
	pending atomic.Int64

	mu      sync.Mutex
	summary harvester.RunSummary
	sitemap *siteMapCollector
}

// Option wires an optional collaborator.
type Option func(*Scheduler)

// WithRenderer enables headless page rendering for discovery runs.
func WithRenderer(r harvester.Renderer) Option {
	return func(s *Scheduler) { s.renderer = r }
}

// WithDedup enables content-hash deduplication before the sink.
func WithDedup(d *resilience.DedupFilter) Option {
	return func(s *Scheduler) { s.dedup = d }
}

// WithBreaker lets the run summary report circuits still open at the end.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(s *Scheduler) { s.breaker = b }
}

// WithBlobStore enables site-map artifact snapshots.
func WithBlobStore(b harvester.BlobStore) Option {
	return func(s *Scheduler) { s.blobs = b }
}

// WithPublisher enables record and summary event publishing.
func WithPublisher(p harvester.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithRetryPolicy overrides the default fetch retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(s *Scheduler) { s.retry = p }
}

// New constructs a Scheduler.
func New(
	cfg Config,
	baseURL string,
	fetcher harvester.Fetcher,
	registry *drivers.Registry,
	sink harvester.Sink,
	clock harvester.Clock,
	ids harvester.IDGenerator,
	logger *zap.Logger,
	opts ...Option,
) (*Scheduler, error) {
	if fetcher == nil {
		return nil, errors.New("scheduler requires a fetcher")
	}
	if sink == nil {
		return nil, errors.New("scheduler requires a sink")
	}
	cfg = cfg.withDefaults()
	admission, err := NewAdmission(baseURL, cfg.VisitedCacheSize)
	if err != nil {
		return nil, err
	}
	metrics.Init()
	s := &Scheduler{
		cfg:       cfg,
		fetcher:   fetcher,
		registry:  registry,
		sink:      sink,
		retry:     NewRetryPolicy(),
		admission: admission,
		clock:     clock,
		ids:       ids,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes one harvest or discovery run to completion. The summary is
// produced whatever happened mid-run; the error reports only setup or
// context failures.
func (s *Scheduler) Run(ctx context.Context, mode harvester.Mode) (harvester.RunSummary, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return harvester.RunSummary{}, fmt.Errorf("run id: %w", err)
	}

	s.queue = newFrontier(s.cfg.QueueDepth)
	s.sitemap = newSiteMapCollector()
	s.summary = harvester.RunSummary{
		RunID:   runID,
		Mode:    mode,
		Started: s.clock.Now().UTC(),
		Dropped: make(map[string]int),
	}
	logger := s.logger.With(zap.String("run_id", runID), zap.String("mode", string(mode)))
	logger.Info("run starting", zap.Int("workers", s.cfg.Workers))

	seeds := s.seedTargets(mode)
	if len(seeds) == 0 {
		return s.summary, errors.New("no seed targets for run")
	}
	s.pending.Store(int64(len(seeds)))
	for _, t := range seeds {
		if err := s.queue.TryEnqueue(t); err != nil {
			s.taskDone()
			s.drop(harvester.DropQueueFull)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx, logger)
		}()
	}
	wg.Wait()

	s.mu.Lock()
	s.summary.Finished = s.clock.Now().UTC()
	if s.breaker != nil {
		s.summary.OpenCircuits = s.breaker.OpenKeys(ctx)
	}
	summary := s.summary
	s.mu.Unlock()

	if mode == harvester.ModeSiteMap {
		s.writeSiteMapArtifact(ctx, runID, logger)
	}
	s.publishEvent(ctx, event{Type: "run_summary", Summary: &summary}, logger)

	logger.Info("run finished",
		zap.Int("pages_fetched", summary.PagesFetched),
		zap.Int("records_forwarded", summary.RecordsForwarded),
		zap.Int("retries", summary.Retries),
		zap.Any("dropped", summary.Dropped),
	)
	return summary, ctx.Err()
}

func (s *Scheduler) seedTargets(mode harvester.Mode) []harvester.CrawlTarget {
	if mode == harvester.ModeSiteMap {
		return []harvester.CrawlTarget{{
			URL:  "https://" + s.admission.host,
			Mode: mode,
			Kind: harvester.KindPage,
		}}
	}
	var seeds []harvester.CrawlTarget
	for _, d := range s.registry.All() {
		for _, u := range d.StartURLs() {
			seeds = append(seeds, harvester.CrawlTarget{
				URL:        u,
				Mode:       mode,
				EntityType: d.EntityType(),
				Kind:       harvester.KindListing,
			})
		}
	}
	return seeds
}

// work drains the frontier. The worker that finishes the last pending task
// closes the queue, releasing the rest of the pool.
func (s *Scheduler) work(ctx context.Context, logger *zap.Logger) {
	for {
		target, err := s.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		metrics.IncActiveWorkers()
		s.process(ctx, target, logger)
		metrics.DecActiveWorkers()
		s.taskDone()
		metrics.SetQueueDepth(s.queue.Len())
	}
}

func (s *Scheduler) taskDone() {
	if s.pending.Add(-1) == 0 {
		s.queue.Close()
	}
}

// enqueue adds follow-up work discovered while processing a target. The
// frontier never blocks; overflow is tallied and dropped.
func (s *Scheduler) enqueue(t harvester.CrawlTarget) {
	s.pending.Add(1)
	if err := s.queue.TryEnqueue(t); err != nil {
		s.drop(harvester.DropQueueFull)
		s.taskDone()
	}
}

func (s *Scheduler) process(ctx context.Context, target harvester.CrawlTarget, logger *zap.Logger) {
	if target.RetryCount == 0 {
		if err := s.admission.Admit(target.URL); err != nil {
			var rej *RejectionError
			if errors.As(err, &rej) {
				s.drop(rej.Reason)
			} else {
				s.drop(harvester.DropOffDomain)
			}
			return
		}
	}

	page, err := s.fetchPage(ctx, target)
	if err != nil {
		s.handleFetchFailure(ctx, target, err, logger)
		return
	}
	if page.StatusCode >= 400 {
		s.handleFetchFailure(ctx, target, &resilience.HTTPStatusError{URL: target.URL, StatusCode: page.StatusCode}, logger)
		return
	}

	s.mu.Lock()
	s.summary.PagesFetched++
	s.mu.Unlock()
	metrics.ObservePage(string(target.EntityType), page.URL, page.StatusCode, len(page.Body))

	if target.Mode == harvester.ModeSiteMap {
		s.processSiteMapPage(target, page, logger)
		return
	}
	s.processHarvestPage(ctx, target, page, logger)
}

func (s *Scheduler) fetchPage(ctx context.Context, target harvester.CrawlTarget) (harvester.Page, error) {
	if target.Mode == harvester.ModeSiteMap && s.renderer != nil {
		return s.renderer.Render(ctx, target.URL)
	}
	return s.fetcher.Fetch(ctx, target.URL)
}

func (s *Scheduler) handleFetchFailure(ctx context.Context, target harvester.CrawlTarget, err error, logger *zap.Logger) {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		s.drop(harvester.DropCircuitOpen)
		return
	case errors.Is(err, resilience.ErrRateLimited):
		s.drop(harvester.DropRateLimited)
		return
	}

	if s.retry.ShouldRetry(err, target.RetryCount) {
		delay := s.retry.Backoff(target.RetryCount)
		logger.Warn("fetch failed, re-enqueueing",
			zap.String("url", target.URL),
			zap.Int("attempt", target.RetryCount+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			s.drop(harvester.DropFetch)
			return
		case <-time.After(delay):
		}
		s.mu.Lock()
		s.summary.Retries++
		s.mu.Unlock()
		metrics.ObserveRetry()
		target.RetryCount++
		s.enqueue(target)
		return
	}

	logger.Error("fetch failed permanently", zap.String("url", target.URL), zap.Error(err))
	s.drop(harvester.DropFetch)
}

func (s *Scheduler) processSiteMapPage(target harvester.CrawlTarget, page harvester.Page, logger *zap.Logger) {
	s.sitemap.add(harvester.SiteMapEntry{
		URL:         page.URL,
		URLHash:     fingerprint.URLHash(page.URL),
		Title:       drivers.PageTitle(page),
		Depth:       target.Depth,
		ParentURL:   target.ParentURL,
		StatusCode:  page.StatusCode,
		ContentHash: fingerprint.Sum(page.Body),
	})
	s.sitemap.observe(page.Requests)

	if target.Depth >= s.cfg.MaxDepth {
		return
	}
	links, err := drivers.ExtractLinks(page)
	if err != nil {
		logger.Warn("link extraction failed", zap.String("url", page.URL), zap.Error(err))
		s.drop(harvester.DropExtraction)
		return
	}
	for _, link := range links {
		s.enqueue(harvester.CrawlTarget{
			URL:       link,
			Depth:     target.Depth + 1,
			ParentURL: page.URL,
			Mode:      harvester.ModeSiteMap,
			Kind:      harvester.KindPage,
		})
	}
}

func (s *Scheduler) processHarvestPage(ctx context.Context, target harvester.CrawlTarget, page harvester.Page, logger *zap.Logger) {
	driver, ok := s.registry.Get(target.EntityType)
	if !ok {
		logger.Error("no driver registered", zap.String("entity_type", string(target.EntityType)))
		s.drop(harvester.DropExtraction)
		return
	}

	switch target.Kind {
	case harvester.KindListing:
		res, err := driver.ParseListing(page)
		if err != nil {
			logger.Warn("listing extraction failed", zap.String("url", page.URL), zap.Error(err))
			s.drop(harvester.DropExtraction)
			return
		}
		for _, rec := range res.Records {
			s.deliverRecord(ctx, rec, logger)
		}
		for _, rel := range res.Relationships {
			s.deliverRelationship(ctx, rel, logger)
		}
		for _, det := range res.Details {
			s.enqueue(harvester.CrawlTarget{
				URL:          det.URL,
				Depth:        target.Depth + 1,
				ParentURL:    page.URL,
				Mode:         target.Mode,
				EntityType:   target.EntityType,
				Kind:         harvester.KindDetail,
				Continuation: det.Continuation,
			})
		}
		if res.NextPageURL != "" {
			s.enqueue(harvester.CrawlTarget{
				URL:        res.NextPageURL,
				Depth:      target.Depth + 1,
				ParentURL:  page.URL,
				Mode:       target.Mode,
				EntityType: target.EntityType,
				Kind:       harvester.KindListing,
			})
		}

	case harvester.KindDetail:
		res, err := driver.ParseDetail(page, target.Continuation)
		if err != nil {
			var verr *drivers.ValidationError
			if errors.As(err, &verr) {
				s.drop(harvester.DropValidation)
			} else {
				s.drop(harvester.DropExtraction)
			}
			logger.Warn("detail extraction failed", zap.String("url", page.URL), zap.Error(err))
			return
		}
		s.deliverRecord(ctx, res.Record, logger)
		for _, rel := range res.Relationships {
			s.deliverRelationship(ctx, rel, logger)
		}

	default:
		s.drop(harvester.DropExtraction)
	}
}

// deliverRecord pushes one record through dedup, the sink, and the event
// stream, tallying each outcome once.
func (s *Scheduler) deliverRecord(ctx context.Context, rec harvester.ExtractedRecord, logger *zap.Logger) {
	s.mu.Lock()
	s.summary.RecordsExtracted++
	s.mu.Unlock()

	if s.dedup != nil && !s.dedup.Admit(ctx, rec.EntityType, rec.ContentHash) {
		s.drop(harvester.DropDuplicate)
		return
	}
	if err := s.sink.UpsertRecord(ctx, rec); err != nil {
		logger.Error("record upsert failed",
			zap.String("entity_type", string(rec.EntityType)),
			zap.String("natural_key", rec.NaturalKey),
			zap.Error(err),
		)
		s.drop(harvester.DropSink)
		return
	}

	s.mu.Lock()
	s.summary.RecordsForwarded++
	s.mu.Unlock()
	metrics.ObserveRecord(string(rec.EntityType))
	s.publishEvent(ctx, event{Type: "record", Record: &rec}, logger)
}

func (s *Scheduler) deliverRelationship(ctx context.Context, rel harvester.RelationshipRecord, logger *zap.Logger) {
	if err := s.sink.UpsertRelationship(ctx, rel); err != nil {
		logger.Error("relationship upsert failed",
			zap.String("predicate", rel.Predicate),
			zap.String("subject", rel.SubjectID),
			zap.Error(err),
		)
		s.drop(harvester.DropSink)
		return
	}
	s.mu.Lock()
	s.summary.Relationships++
	s.mu.Unlock()
	metrics.ObserveRelationship(rel.Predicate)
	s.publishEvent(ctx, event{Type: "relationship", Relationship: &rel}, logger)
}

func (s *Scheduler) drop(reason string) {
	s.mu.Lock()
	s.summary.Dropped[reason]++
	s.mu.Unlock()
	metrics.ObserveDrop(reason)
}

func (s *Scheduler) writeSiteMapArtifact(ctx context.Context, runID string, logger *zap.Logger) {
	if s.blobs == nil {
		return
	}
	artifact := s.sitemap.artifact(runID, s.clock.Now().UTC())
	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		logger.Error("sitemap artifact marshal failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/sitemap.json", s.cfg.SnapshotPrefix, runID)
	uri, err := s.blobs.PutObject(ctx, path, "application/json", payload)
	if err != nil {
		logger.Error("sitemap artifact write failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("sitemap artifact written",
		zap.String("uri", uri),
		zap.Int("entries", len(artifact.Entries)),
		zap.Int("api_endpoints", len(artifact.APIEndpoints)),
	)
}

// event is the envelope published for records, relationships, and the final
// run summary.
type event struct {
	Type         string                        `json:"type"`
	Record       *harvester.ExtractedRecord    `json:"record,omitempty"`
	Relationship *harvester.RelationshipRecord `json:"relationship,omitempty"`
	Summary      *harvester.RunSummary         `json:"summary,omitempty"`
}

func (s *Scheduler) publishEvent(ctx context.Context, ev event, logger *zap.Logger) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, ev); err != nil {
		logger.Warn("event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
