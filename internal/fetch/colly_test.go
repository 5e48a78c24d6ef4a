package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockedFetcher(t *testing.T) (*CollyFetcher, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	f, err := New(Config{
		UserAgent:      "renec-harvester-test/0.1",
		RequestTimeout: 5 * time.Second,
		Transport:      transport,
	}, zap.NewNop())
	require.NoError(t, err)
	return f, transport
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	f, transport := newMockedFetcher(t)
	resp := httpmock.NewStringResponse(200, "<html><body>listado</body></html>")
	resp.Header.Set("Content-Type", "text/html")
	transport.RegisterResponder("GET", "https://conocer.gob.mx/RENEC/controlador.do",
		httpmock.ResponderFromResponse(resp))

	page, err := f.Fetch(context.Background(), "https://conocer.gob.mx/RENEC/controlador.do")
	require.NoError(t, err)
	require.Equal(t, 200, page.StatusCode)
	require.Contains(t, string(page.Body), "listado")
	require.Equal(t, "text/html", page.Headers.Get("Content-Type"))
}

func TestFetch_HTTPErrorReturnsPage(t *testing.T) {
	t.Parallel()

	f, transport := newMockedFetcher(t)
	transport.RegisterResponder("GET", "https://conocer.gob.mx/RENEC/missing",
		httpmock.NewStringResponder(500, "boom"))

	page, err := f.Fetch(context.Background(), "https://conocer.gob.mx/RENEC/missing")
	require.NoError(t, err)
	require.Equal(t, 500, page.StatusCode)
}

func TestFetch_TransportError(t *testing.T) {
	t.Parallel()

	f, transport := newMockedFetcher(t)
	transport.RegisterResponder("GET", "https://conocer.gob.mx/refused",
		httpmock.NewErrorResponder(context.DeadlineExceeded))

	_, err := f.Fetch(context.Background(), "https://conocer.gob.mx/refused")
	require.Error(t, err)
}

func TestNew_RequiresUserAgent(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, zap.NewNop())
	require.Error(t, err)
}
