// Package render delegates JavaScript rendering to headless Chrome via
// chromedp. Beyond the DOM snapshot it reports the network requests observed
// while rendering, which sitemap runs use to surface undocumented endpoints.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

// ErrDisabled indicates rendering has been disabled via configuration.
var ErrDisabled = errors.New("renderer disabled")

// Config controls the headless rendering subsystem.
type Config struct {
	UserAgent      string
	MaxConcurrency int
	Timeout        time.Duration
	DomainQPS      float64
}

// Renderer renders pages using a shared headless browser. Render calls are
// bounded by a semaphore and a per-domain QPS budget.
type Renderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	timeout         time.Duration
	domainQPS       float64
	domainLimiters  sync.Map
	userAgent       string
}

// New creates a renderer and warms up the browser.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, ErrDisabled
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Renderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, cfg.MaxConcurrency),
		timeout:         cfg.Timeout,
		domainQPS:       cfg.DomainQPS,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (r *Renderer) Close() error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Render navigates to rawURL with JavaScript enabled and returns the DOM
// snapshot plus the network trace. On timeout the page is returned with
// whatever DOM was present rather than an error, so extraction can proceed.
func (r *Renderer) Render(ctx context.Context, rawURL string) (harvester.Page, error) {
	if r == nil {
		return harvester.Page{}, ErrDisabled
	}

	release, err := r.acquireSlot(ctx)
	if err != nil {
		return harvester.Page{}, err
	}
	defer release()

	if waitErr := r.waitDomainBudget(ctx, rawURL); waitErr != nil {
		return harvester.Page{}, fmt.Errorf("render rate budget: %w", waitErr)
	}

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	trace := newPageTrace()
	trace.listen(tabCtx)

	start := time.Now()
	html, err := r.navigate(taskCtx, rawURL)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return harvester.Page{}, fmt.Errorf("chromedp run: %w", err)
		}
		// Deadline hit mid-render: snapshot whatever DOM is present.
		html, err = r.snapshot(tabCtx)
		if err != nil {
			return harvester.Page{}, fmt.Errorf("snapshot after timeout: %w", err)
		}
		r.logger.Warn("render timed out, using partial DOM", zap.String("url", rawURL))
	}

	status, headers, finalURL := trace.document(rawURL)
	return harvester.Page{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
		Requests:   trace.requests(),
	}, nil
}

func (r *Renderer) navigate(ctx context.Context, rawURL string) (string, error) {
	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", err
	}
	return html, nil
}

func (r *Renderer) snapshot(tabCtx context.Context) (string, error) {
	graceCtx, cancel := context.WithTimeout(tabCtx, 2*time.Second)
	defer cancel()
	var html string
	if err := chromedp.Run(graceCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (r *Renderer) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case r.sem <- struct{}{}:
		return func() { <-r.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

func (r *Renderer) waitDomainBudget(ctx context.Context, rawURL string) error {
	if r.domainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse render url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := r.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(r.domainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait render budget: %w", err)
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// pageTrace accumulates CDP network events for one tab.
type pageTrace struct {
	mu       sync.Mutex
	reqs     []harvester.NetworkRequest
	docOnce  sync.Once
	status   int
	headers  http.Header
	finalURL string
}

func newPageTrace() *pageTrace {
	return &pageTrace{headers: make(http.Header)}
}

func (t *pageTrace) listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.mu.Lock()
			t.reqs = append(t.reqs, harvester.NetworkRequest{
				Method:       e.Request.Method,
				URL:          e.Request.URL,
				ResourceType: string(e.Type),
			})
			t.mu.Unlock()
		case *network.EventResponseReceived:
			if e.Type != network.ResourceTypeDocument {
				return
			}
			t.docOnce.Do(func() {
				t.mu.Lock()
				defer t.mu.Unlock()
				t.status = int(e.Response.Status)
				t.finalURL = e.Response.URL
				for k, v := range e.Response.Headers {
					t.headers.Add(k, fmt.Sprint(v))
				}
			})
		}
	})
}

func (t *pageTrace) document(rawURL string) (int, http.Header, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	finalURL := t.finalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	return t.status, t.headers, finalURL
}

func (t *pageTrace) requests() []harvester.NetworkRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]harvester.NetworkRequest, len(t.reqs))
	copy(out, t.reqs)
	return out
}
