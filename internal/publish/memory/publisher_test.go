package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishGroupsByTopic(t *testing.T) {
	p := New()

	id1, err := p.Publish(context.Background(), "harvest-events", map[string]string{"type": "record"})
	require.NoError(t, err)
	id2, err := p.Publish(context.Background(), "harvest-events", map[string]string{"type": "relationship"})
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), "audit", "noted")
	require.NoError(t, err)

	assert.Equal(t, "local-1", id1)
	assert.Equal(t, "local-2", id2)
	assert.Equal(t, []string{"audit", "harvest-events"}, p.Topics())

	events := p.Events("harvest-events")
	require.Len(t, events, 2)
	assert.Equal(t, map[string]string{"type": "record"}, events[0])

	assert.Empty(t, p.Events("unknown"))
}
