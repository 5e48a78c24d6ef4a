// Package fetch implements the plain-HTTP page fetcher using Colly.
package fetch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// Config controls the Colly collector backing the fetcher.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxBodyBytes   int
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// CollyFetcher implements harvester.Fetcher using a cloned Colly collector
// per request, so concurrent fetches never share handler state.
type CollyFetcher struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New constructs a configured Colly-based fetcher.
func New(cfg Config, logger *zap.Logger) (*CollyFetcher, error) {
	if cfg.UserAgent == "" {
		return nil, errors.New("user agent is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	base := colly.NewCollector(
		colly.Async(false),
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	if cfg.MaxBodyBytes > 0 {
		base.MaxBodySize = cfg.MaxBodyBytes
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          128,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.RequestTimeout,
			ForceAttemptHTTP2:     true,
		}
	}
	base.WithTransport(transport)
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &CollyFetcher{
		baseCollector: base,
		logger:        logger,
	}, nil
}

type fetchResult struct {
	page harvester.Page
	err  error
}

// Fetch retrieves a page. HTTP error statuses are returned as pages, not Go
// errors, so callers can distinguish transport failures from server answers.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (harvester.Page, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{page: pageFromResponse(rawURL, r, start)})
	})
	collector.OnError(func(r *colly.Response, err error) {
		// Colly routes non-2xx statuses here; keep the page so the caller
		// sees the status code.
		if r != nil && r.StatusCode > 0 {
			send(fetchResult{page: pageFromResponse(rawURL, r, start)})
			return
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return harvester.Page{}, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return harvester.Page{}, err
		}
		if res.err != nil {
			f.logger.Debug("fetch failed", zap.String("url", rawURL), zap.Error(res.err))
		}
		return res.page, res.err
	default:
		return harvester.Page{}, errors.New("colly fetch produced no result")
	}
}

func pageFromResponse(rawURL string, r *colly.Response, start time.Time) harvester.Page {
	headers := http.Header{}
	if r.Headers != nil {
		for k, v := range *r.Headers {
			cp := make([]string, len(v))
			copy(cp, v)
			headers[k] = cp
		}
	}
	finalURL := rawURL
	if r.Request != nil && r.Request.URL != nil {
		finalURL = r.Request.URL.String()
	}
	return harvester.Page{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       append([]byte{}, r.Body...),
		Duration:   time.Since(start),
	}
}
