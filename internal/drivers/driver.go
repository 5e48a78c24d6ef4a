package drivers

import (
	"fmt"
	"net/url"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// Stats are the only mutable state a driver carries across requests.
type Stats struct {
	PagesProcessed int64
	ItemsExtracted int64
	Errors         int64
}

// base carries the pieces every driver shares. All parsing methods are pure
// functions of one page plus its continuation; only the counters mutate.
type base struct {
	entity  harvester.EntityType
	profile EntityProfile
	baseURL *url.URL
	fp      harvester.Fingerprinter
	clock   harvester.Clock
	logger  *zap.Logger

	pages atomic.Int64
	items atomic.Int64
	errs  atomic.Int64
}

func newBase(entity harvester.EntityType, site SiteProfile, profile EntityProfile, fp harvester.Fingerprinter, clock harvester.Clock, logger *zap.Logger) (base, error) {
	u, err := url.Parse(site.BaseURL)
	if err != nil || u.Host == "" {
		return base{}, fmt.Errorf("invalid site base url %q", site.BaseURL)
	}
	return base{
		entity:  entity,
		profile: profile,
		baseURL: u,
		fp:      fp,
		clock:   clock,
		logger:  logger.With(zap.String("entity_type", string(entity))),
	}, nil
}

// EntityType identifies the driver.
func (b *base) EntityType() harvester.EntityType {
	return b.entity
}

// StartURLs returns the driver's fixed entry points.
func (b *base) StartURLs() []string {
	urls := make([]string, 0, len(b.profile.StartPaths))
	for _, p := range b.profile.StartPaths {
		urls = append(urls, resolveURL(b.baseURL, p))
	}
	return urls
}

// Stats snapshots the run counters.
func (b *base) Stats() Stats {
	return Stats{
		PagesProcessed: b.pages.Load(),
		ItemsExtracted: b.items.Load(),
		Errors:         b.errs.Load(),
	}
}

// finishRecord normalizes shared fields, stamps the fingerprint, and
// validates the record. Normalization: phones are rewritten to international
// form, region names resolved to fixed codes (blank and logged when
// unmapped).
func (b *base) finishRecord(naturalKey, sourceURL string, fields map[string]string, incomplete bool) (harvester.ExtractedRecord, error) {
	if phone, ok := fields["phone"]; ok {
		fields["phone"] = NormalizePhone(phone)
	}
	if state, ok := fields["state"]; ok && state != "" {
		code, resolved := NormalizeRegion(state)
		if !resolved {
			b.logger.Warn("unmapped region name, leaving code blank",
				zap.String("region", state),
				zap.String("url", sourceURL),
			)
		}
		fields["state_code"] = code
	}

	rec := harvester.ExtractedRecord{
		EntityType:  b.entity,
		NaturalKey:  naturalKey,
		Fields:      fields,
		ContentHash: b.fp.Fingerprint(fields),
		SourceURL:   sourceURL,
		ExtractedAt: b.clock.Now().UTC(),
		Incomplete:  incomplete,
	}
	if err := ValidateRecord(rec); err != nil {
		b.errs.Add(1)
		return harvester.ExtractedRecord{}, err
	}
	b.items.Add(1)
	return rec, nil
}

// Registry holds one driver per entity type.
type Registry struct {
	drivers map[harvester.EntityType]harvester.Driver
	order   []harvester.EntityType
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[harvester.EntityType]harvester.Driver)}
}

// Register adds a driver, replacing any prior driver for the same entity.
func (r *Registry) Register(d harvester.Driver) {
	if _, exists := r.drivers[d.EntityType()]; !exists {
		r.order = append(r.order, d.EntityType())
	}
	r.drivers[d.EntityType()] = d
}

// Get returns the driver for an entity type.
func (r *Registry) Get(entity harvester.EntityType) (harvester.Driver, bool) {
	d, ok := r.drivers[entity]
	return d, ok
}

// All returns the registered drivers in registration order.
func (r *Registry) All() []harvester.Driver {
	out := make([]harvester.Driver, 0, len(r.order))
	for _, e := range r.order {
		out = append(out, r.drivers[e])
	}
	return out
}

// NewDefaultRegistry registers every RENEC driver against the profile.
func NewDefaultRegistry(site SiteProfile, fp harvester.Fingerprinter, clock harvester.Clock, logger *zap.Logger) (*Registry, error) {
	reg := NewRegistry()

	standard, err := NewStandardDriver(site, fp, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("standard driver: %w", err)
	}
	reg.Register(standard)

	certifier, err := NewCertifierDriver(site, fp, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("certifier driver: %w", err)
	}
	reg.Register(certifier)

	center, err := NewCenterDriver(site, fp, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("center driver: %w", err)
	}
	reg.Register(center)

	sector, err := NewSectorDriver(site, fp, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("sector driver: %w", err)
	}
	reg.Register(sector)

	return reg, nil
}
