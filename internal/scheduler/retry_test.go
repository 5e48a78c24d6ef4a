package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/conocermx/renec-harvester/internal/resilience"
)

func TestShouldRetryClassification(t *testing.T) {
	p := NewRetryPolicy()

	cases := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "generic transport error", err: errors.New("connection reset"), want: true},
		{name: "attempts exhausted", err: errors.New("connection reset"), attempt: 3, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "circuit open", err: &resilience.CircuitOpenError{Key: "conocer.gob.mx"}, want: false},
		{name: "rate limited", err: &resilience.RateLimitedError{Key: "conocer.gob.mx"}, want: false},
		{name: "server error status", err: &resilience.HTTPStatusError{StatusCode: 503}, want: true},
		{name: "too many requests status", err: &resilience.HTTPStatusError{StatusCode: 429}, want: true},
		{name: "client error status", err: &resilience.HTTPStatusError{StatusCode: 404}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.ShouldRetry(tc.err, tc.attempt))
		})
	}
}

func TestBackoffBounded(t *testing.T) {
	p := NewRetryPolicy()

	for attempt := 0; attempt < 6; attempt++ {
		d := p.Backoff(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.maxDelay)
	}
}
