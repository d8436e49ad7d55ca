package repository

import (
	"context"
	"testing"
	"time"

	"loyaltybot/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStateRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisStateRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetState", func(t *testing.T) {
		amount := 5000
		pad := models.NewScratchpad(123, "ivanov")
		pad.Step = models.StepFrequency
		pad.CardType = models.CardTypeBarter
		pad.Amount = &amount

		err := repo.SetState(ctx, pad)
		require.NoError(t, err)

		got, err := repo.GetState(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, pad.ChatID, got.ChatID)
		assert.Equal(t, models.StepFrequency, got.Step)
		assert.Equal(t, models.CardTypeBarter, got.CardType)
		require.NotNil(t, got.Amount)
		assert.Equal(t, 5000, *got.Amount)
	})

	t.Run("TTL", func(t *testing.T) {
		require.NoError(t, repo.SetState(ctx, models.NewScratchpad(321, "")))
		assert.Equal(t, time.Hour, s.TTL(stateKey(321)))

		s.FastForward(time.Hour + time.Second)
		got, err := repo.GetState(ctx, 321)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("GetNonExistentState", func(t *testing.T) {
		got, err := repo.GetState(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearState", func(t *testing.T) {
		require.NoError(t, repo.SetState(ctx, models.NewScratchpad(456, "")))

		err := repo.ClearState(ctx, 456)
		require.NoError(t, err)

		got, _ := repo.GetState(ctx, 456)
		assert.Nil(t, got)
	})

	t.Run("CorruptValue", func(t *testing.T) {
		require.NoError(t, s.Set(stateKey(777), "{not json"))
		_, err := repo.GetState(ctx, 777)
		assert.Error(t, err)
	})

	t.Run("RateLimit", func(t *testing.T) {
		chatID := int64(789)
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, chatID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, chatID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, chatID, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, chatID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStateRepository(nil, time.Hour)
		_, err := repo.GetState(ctx, 123)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		err := Ping(ctx, client)
		assert.NoError(t, err)
	})

	t.Run("Close", func(t *testing.T) {
		err := Close(client)
		assert.NoError(t, err)
	})
}
