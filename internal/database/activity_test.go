package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLog(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	_, ok, err := db.LastActivityEvent(ctx, "job:daily_summary")
	require.NoError(t, err)
	assert.False(t, ok)

	earlier := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.LogActivityAt(ctx, 0, "job:daily_summary", earlier))
	require.NoError(t, db.LogActivity(ctx, 0, "job:daily_summary"))

	last, ok, err := db.LastActivityEvent(ctx, "job:daily_summary")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), last, time.Minute)

	n, err := db.CountActivity(ctx, "job:daily_summary", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
