package repository

import (
	"context"
	"testing"
	"time"

	"loyaltybot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateRepository(t *testing.T) {
	repo := NewMemoryStateRepository(time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetState", func(t *testing.T) {
		pad := models.NewScratchpad(123, "ivanov")
		pad.Step = models.StepOwnerLastName
		err := repo.SetState(ctx, pad)
		require.NoError(t, err)

		got, err := repo.GetState(ctx, 123)
		require.NoError(t, err)
		assert.Equal(t, pad, got)

		// stored value is a copy
		got.Step = models.StepConfirm
		again, _ := repo.GetState(ctx, 123)
		assert.Equal(t, models.StepOwnerLastName, again.Step)
	})

	t.Run("ClearState", func(t *testing.T) {
		err := repo.ClearState(ctx, 123)
		require.NoError(t, err)
		got, _ := repo.GetState(ctx, 123)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		now := time.Now()
		repo.now = func() time.Time { return now }
		defer func() { repo.now = time.Now }()

		require.NoError(t, repo.SetState(ctx, models.NewScratchpad(5, "")))
		now = now.Add(time.Hour)
		got, err := repo.GetState(ctx, 5)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		now := time.Now()
		repo.now = func() time.Time { return now }
		defer func() { repo.now = time.Now }()

		chatID := int64(456)
		allowed, _ := repo.CheckRateLimit(ctx, chatID, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, chatID, 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, chatID, 2, time.Second)
		assert.False(t, allowed)

		now = now.Add(time.Second + time.Millisecond)
		allowed, _ = repo.CheckRateLimit(ctx, chatID, 2, time.Second)
		assert.True(t, allowed)
	})
}
