package scheduler

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/conocermx/renec-harvester/internal/fingerprint"
	"github.com/conocermx/renec-harvester/internal/harvester"
)

// RejectionError reports why a target never reached the fetcher. Reason is
// one of the harvester drop constants.
type RejectionError struct {
	URL    string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("target %s rejected: %s", e.URL, e.Reason)
}

// skipExtensions lists asset suffixes that never carry registry content.
var skipExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".ico": {}, ".svg": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
	".pdf": {}, ".zip": {}, ".rar": {},
	".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".mp3": {}, ".mp4": {}, ".avi": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

// Admission gates targets before they reach the fetch chain: same-site only,
// no binary assets, each URL once per run. The visited set is a bounded LRU
// keyed by URL hash, so memory stays flat however long the run.
type Admission struct {
	host    string
	visited *lru.Cache[string, struct{}]
}

// NewAdmission builds the filter for one site.
func NewAdmission(baseURL string, visitedSize int) (*Admission, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if visitedSize <= 0 {
		visitedSize = 65536
	}
	cache, err := lru.New[string, struct{}](visitedSize)
	if err != nil {
		return nil, fmt.Errorf("visited cache: %w", err)
	}
	return &Admission{host: strings.ToLower(u.Hostname()), visited: cache}, nil
}

// Admit checks a URL and, when admitted, marks it visited.
func (a *Admission) Admit(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return &RejectionError{URL: rawURL, Reason: harvester.DropOffDomain}
	}
	host := strings.ToLower(u.Hostname())
	if host != a.host && !strings.HasSuffix(host, "."+a.host) {
		return &RejectionError{URL: rawURL, Reason: harvester.DropOffDomain}
	}
	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
		if _, skip := skipExtensions[ext]; skip {
			return &RejectionError{URL: rawURL, Reason: harvester.DropExtension}
		}
	}
	key := fingerprint.URLHash(rawURL)
	if _, seen := a.visited.Get(key); seen {
		return &RejectionError{URL: rawURL, Reason: harvester.DropVisited}
	}
	a.visited.Add(key, struct{}{})
	return nil
}

// VisitedLen reports how many URLs the run has admitted so far, capped by
// the cache bound.
func (a *Admission) VisitedLen() int {
	return a.visited.Len()
}
