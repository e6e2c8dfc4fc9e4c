package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/database/dbtest"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const sample = `
users:
  - username: Reviewer
    display_name: App Reviewer
    email: reviewer@example.com
    password: review-pass-1
    latitude: 41.0256
    longitude: 28.9741
  - username: friend
    email: friend@example.com
    password: friend-pass-1
    latitude: 41.0257
    longitude: 28.9741
  - username: stranger
    email: stranger@example.com
    password: stranger-pass-1
  - username: pest
    email: pest@example.com
    password: pest-pass-01
connections:
  - from: reviewer
    to: friend
    status: accepted
  - from: stranger
    to: reviewer
blocks:
  - blocker: reviewer
    blocked: pest
`

func newLoader(t *testing.T) (*Loader, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	policy := config.DefaultPolicy()
	feed := events.NewFeed(db, events.NewHub(), nil, clk)
	moderation := services.NewModerationService()
	identity := services.NewIdentityService(db, clk, policy, moderation)
	auth := services.NewAuthService(db, &config.Config{JWTSecret: "x"}, clk, moderation)
	return NewLoader(auth, identity, services.NewConnectionService(db, clk, feed)), db
}

func TestLoadIsIdempotent(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	loader, db := newLoader(t)
	ctx := context.Background()

	report, err := loader.Load(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Report{UsersCreated: 4, ConnectionsCreated: 2, Blocks: 1}, report)

	var reviewer models.User
	require.NoError(t, db.First(&reviewer, "username = ?", "reviewer").Error)
	assert.True(t, reviewer.IsFixture)
	assert.Equal(t, "App Reviewer", reviewer.DisplayName)
	assert.True(t, reviewer.HasLocation())

	var statuses []string
	require.NoError(t, db.Model(&models.Connection{}).Order("status").Pluck("status", &statuses).Error)
	assert.Equal(t, []string{"accepted", "pending"}, statuses)

	report, err = loader.Load(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Report{UsersSkipped: 4, ConnectionsSkipped: 2, Blocks: 1}, report)

	var users, blocks int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Block{}).Count(&blocks).Error)
	assert.Equal(t, int64(4), users)
	assert.Equal(t, int64(1), blocks)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse([]byte("users:\n  - username: a\n    nickname: b\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Parse([]byte("connections:\n  - from: a\n    to: b\n    status: blocked\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("users:\n  - username: abc\n    latitude: 1.5\n"))
	assert.Error(t, err)
}

func TestLoadUnknownReference(t *testing.T) {
	loader, _ := newLoader(t)
	f, err := Parse([]byte("connections:\n  - from: ghost\n    to: phantom\n"))
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), f)
	assert.ErrorIs(t, err, services.ErrUserNotFound)
}
