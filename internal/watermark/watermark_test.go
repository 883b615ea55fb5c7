package watermark

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Load(ctx, "responses")
	require.NoError(t, err)
	assert.False(t, ok)

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.Advance(ctx, "responses", t1))

	at, ok, err := m.Load(ctx, "responses")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(t1))

	require.NoError(t, m.Advance(ctx, "responses", t1.Add(-time.Hour)))
	at, _, _ = m.Load(ctx, "responses")
	assert.True(t, at.Equal(t1), "watermark never moves backwards")

	_, ok, _ = m.Load(ctx, "other")
	assert.False(t, ok, "watermarks are independent per name")
}
