package database

import (
	"context"
	"testing"
	"time"

	"loyaltybot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser(id int64) *models.User {
	return &models.User{
		TelegramID: id,
		Username:   "ivanov",
		FullName:   "Иванов Иван",
		Email:      "ivan@acme.com",
		JobTitle:   "Менеджер",
		Phone:      "79991234567",
	}
}

func TestUserUpsertIdempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	user := testUser(42)

	require.NoError(t, db.UpsertUser(ctx, user))
	first, err := db.GetUser(ctx, 42)
	require.NoError(t, err)

	require.NoError(t, db.UpsertUser(ctx, user))
	second, err := db.GetUser(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, first.FullName, second.FullName)
	assert.Equal(t, first.Email, second.Email)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestUserNotFoundAndRegistration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	_, err := db.GetUser(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := db.IsRegistered(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.UpsertUser(ctx, &models.User{TelegramID: 1, Phone: "79990000000"}))
	ok, err = db.IsRegistered(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "a row without full name is not a registration")

	require.NoError(t, db.UpsertUser(ctx, testUser(1)))
	ok, err = db.IsRegistered(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetUsersForReminder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -40)

	idle := testUser(1)
	idle.LastActivity = old
	require.NoError(t, db.UpsertUser(ctx, idle))

	idleNoDecision := testUser(2)
	idleNoDecision.LastActivity = old
	require.NoError(t, db.UpsertUser(ctx, idleNoDecision))

	active := testUser(3)
	require.NoError(t, db.UpsertUser(ctx, active))

	decided := testApplication(1, "89990000001")
	decided.Status = models.StatusApproved
	_, err := db.InsertApplication(ctx, decided)
	require.NoError(t, err)

	pending := testApplication(2, "89990000002")
	_, err = db.InsertApplication(ctx, pending)
	require.NoError(t, err)

	decidedActive := testApplication(3, "89990000003")
	decidedActive.Status = models.StatusRejected
	_, err = db.InsertApplication(ctx, decidedActive)
	require.NoError(t, err)

	users, err := db.GetUsersForReminder(ctx, time.Now().AddDate(0, 0, -models.InactiveThresholdDays))
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(1), users[0].TelegramID)

	require.NoError(t, db.UpdateActivity(ctx, 1))
	users, err = db.GetUsersForReminder(ctx, time.Now().AddDate(0, 0, -models.InactiveThresholdDays))
	require.NoError(t, err)
	assert.Empty(t, users)
}
