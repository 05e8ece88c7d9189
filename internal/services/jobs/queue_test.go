package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/venator/internal/models"
)

func TestQueuePriorityOrder(t *testing.T) {
	q := newQueue(8)
	require.NoError(t, q.Push("low-1", models.PriorityLow))
	require.NoError(t, q.Push("normal-1", models.PriorityNormal))
	require.NoError(t, q.Push("high-1", models.PriorityHigh))

	ctx := context.Background()
	for _, want := range []string{"high-1", "normal-1", "low-1"} {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestQueueFIFOWithinLevel(t *testing.T) {
	q := newQueue(8)
	require.NoError(t, q.Push("first", models.PriorityNormal))
	require.NoError(t, q.Push("second", models.PriorityNormal))

	ctx := context.Background()
	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", got)
	got, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestQueueOverflow(t *testing.T) {
	q := newQueue(1)
	require.NoError(t, q.Push("a", models.PriorityNormal))

	err := q.Push("b", models.PriorityNormal)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindQueueOverflow))

	// Other levels have their own capacity.
	assert.NoError(t, q.Push("c", models.PriorityHigh))
	assert.Equal(t, 2, q.Depth())
}

func TestQueuePopHonorsContext(t *testing.T) {
	q := newQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
