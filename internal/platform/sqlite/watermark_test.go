package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermarkStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "watermark.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)

	_, ok, err := s.Load(ctx, "responses")
	require.NoError(t, err)
	assert.False(t, ok)

	t1 := time.Date(2024, 5, 1, 12, 0, 0, 1_000_000, time.UTC)
	require.NoError(t, s.Advance(ctx, "responses", t1))
	require.NoError(t, s.Advance(ctx, "responses", t1.Add(-time.Minute)))

	at, ok, err := s.Load(ctx, "responses")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(t1), "watermark never moves backwards")

	require.NoError(t, s.Close())

	// Reopening keeps the stored value.
	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	at, ok, err = reopened.Load(ctx, "responses")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(t1))

	t2 := t1.Add(time.Second)
	require.NoError(t, reopened.Advance(ctx, "responses", t2))
	at, _, err = reopened.Load(ctx, "responses")
	require.NoError(t, err)
	assert.True(t, at.Equal(t2))
}
