package scheduler

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// siteMapCollector accumulates the discovery-mode output: visited entries in
// completion order plus the API endpoints observed in render network traces.
type siteMapCollector struct {
	mu      sync.Mutex
	entries []harvester.SiteMapEntry
	api     map[string]struct{}
}

func newSiteMapCollector() *siteMapCollector {
	return &siteMapCollector{api: make(map[string]struct{})}
}

func (c *siteMapCollector) add(entry harvester.SiteMapEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

// observe records API-shaped traffic from a page's network trace. Document
// loads are skipped; XHR and fetch requests plus bare data URLs are what
// identify the portal's backing endpoints.
func (c *siteMapCollector) observe(requests []harvester.NetworkRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, req := range requests {
		if !apiShaped(req) {
			continue
		}
		c.api[req.Method+" "+req.URL] = struct{}{}
	}
}

func apiShaped(req harvester.NetworkRequest) bool {
	switch strings.ToLower(req.ResourceType) {
	case "xhr", "fetch":
		return true
	}
	lower := strings.ToLower(req.URL)
	trimmed := lower
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.HasSuffix(trimmed, ".json") || strings.HasSuffix(trimmed, ".xml")
}

// SiteMapArtifact is the JSON document written to the blob store at the end
// of a discovery run.
type SiteMapArtifact struct {
	RunID        string                  `json:"run_id"`
	GeneratedAt  time.Time               `json:"generated_at"`
	Entries      []harvester.SiteMapEntry `json:"entries"`
	APIEndpoints []string                `json:"api_endpoints"`
}

func (c *siteMapCollector) artifact(runID string, now time.Time) SiteMapArtifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	endpoints := make([]string, 0, len(c.api))
	for ep := range c.api {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)
	return SiteMapArtifact{
		RunID:        runID,
		GeneratedAt:  now,
		Entries:      append([]harvester.SiteMapEntry(nil), c.entries...),
		APIEndpoints: endpoints,
	}
}
