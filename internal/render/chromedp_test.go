package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/harvester"
)

func TestNew_DisabledWithoutConcurrency(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxConcurrency: 0}, zap.NewNop())
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestRenderer_Render(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/datos.json" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"ok":true}`)
			return
		}
		fmt.Fprint(w, `<!doctype html><html><body><script>
			fetch('/datos.json');
			document.body.innerHTML = '<div id="late">contenido dinamico</div>';
		</script></body></html>`)
	}))
	defer srv.Close()

	renderer, err := New(Config{
		UserAgent:      "renec-harvester-test/0.1",
		MaxConcurrency: 1,
		Timeout:        10 * time.Second,
		DomainQPS:      2,
	}, zap.NewNop())
	if errors.Is(err, ErrDisabled) {
		t.Skip("renderer disabled")
	}
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer renderer.Close()

	page, err := renderer.Render(context.Background(), srv.URL)
	if err != nil {
		t.Skipf("render failed: %v", err)
	}
	if !page.Rendered {
		t.Fatal("page not marked rendered")
	}
	if !strings.Contains(string(page.Body), "contenido dinamico") {
		t.Fatal("rendered body missing dynamic content")
	}
	if !hasRequest(page.Requests, "/datos.json") {
		t.Fatalf("network trace missing fetch call: %+v", page.Requests)
	}
}

func hasRequest(reqs []harvester.NetworkRequest, pathSuffix string) bool {
	for _, r := range reqs {
		if strings.HasSuffix(r.URL, pathSuffix) {
			return true
		}
	}
	return false
}
