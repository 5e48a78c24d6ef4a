package resilience

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBreakerKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"https://conocer.gob.mx/RENEC/controlador.do?comp=EC", "conocer.gob.mx/RENEC/controlador.do"},
		{"https://CONOCER.gob.mx/", "conocer.gob.mx"},
		{"https://conocer.gob.mx/a/b/c/d", "conocer.gob.mx/a/b"},
		{"https://conocer.gob.mx/solo", "conocer.gob.mx/solo"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, BreakerKey(tt.url), tt.url)
	}
}

func TestRateKey_APITier(t *testing.T) {
	t.Parallel()

	key, api := RateKey("https://conocer.gob.mx/RENEC/controlador.do")
	require.Equal(t, "conocer.gob.mx", key)
	require.False(t, api)

	key, api = RateKey("https://conocer.gob.mx/api/estandares")
	require.Equal(t, "conocer.gob.mx|api", key)
	require.True(t, api)

	key, api = RateKey("https://api.conocer.gob.mx/v1/estandares")
	require.Equal(t, "api.conocer.gob.mx|api", key)
	require.True(t, api)

	_, api = RateKey("https://conocer.gob.mx/datos/estandares.json")
	require.True(t, api)
}
