package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/database/dbtest"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/proximity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Istanbul, Galata tower. Offsets below are roughly 22 m and 1.1 km north.
const (
	baseLat = 41.0256
	baseLon = 28.9741
	nearLat = baseLat + 0.0002
	farLat  = baseLat + 0.01
)

type harness struct {
	db          *gorm.DB
	clock       *clock.FakeClock
	policy      config.Policy
	hub         *events.Hub
	feed        *events.Feed
	moderation  *ModerationService
	identity    *IdentityService
	proximity   *ProximityService
	connections *ConnectionService
	passes      *PassService
	ratings     *RatingService
	janitor     *Janitor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.Fake(epoch)
	policy := config.DefaultPolicy()
	hub := events.NewHub()
	feed := events.NewFeed(db, hub, nil, clk)
	moderation := NewModerationService()
	identity := NewIdentityService(db, clk, policy, moderation)
	prox := NewProximityService(db, clk, proximity.NewEvaluator(policy.ProximityThresholdMeters, policy.LocationStaleness), identity)
	passes := NewPassService(db, clk, policy, prox, feed)
	return &harness{
		db:          db,
		clock:       clk,
		policy:      policy,
		hub:         hub,
		feed:        feed,
		moderation:  moderation,
		identity:    identity,
		proximity:   prox,
		connections: NewConnectionService(db, clk, feed),
		passes:      passes,
		ratings:     NewRatingService(db, clk, feed),
		janitor:     NewJanitor(db, clk, policy, passes, feed),
	}
}

func (h *harness) user(t *testing.T, username string) *models.User {
	t.Helper()
	u := &models.User{
		Email:       username + "@example.com",
		Password:    "not-a-real-hash",
		Username:    username,
		DisplayName: username,
		Role:        "user",
	}
	require.NoError(t, h.db.Create(u).Error)
	return u
}

func (h *harness) connect(t *testing.T, a, b *models.User) *models.Connection {
	t.Helper()
	ctx := context.Background()
	conn, err := h.connections.RequestConnection(ctx, a.ID, b.ID)
	require.NoError(t, err)
	conn, err = h.connections.AcceptConnection(ctx, conn.ID, b.ID)
	require.NoError(t, err)
	return conn
}

func (h *harness) place(t *testing.T, u *models.User, lat, lon float64) {
	t.Helper()
	require.NoError(t, h.identity.UpdateLocation(context.Background(), u.ID, proximity.Point{Latitude: lat, Longitude: lon}))
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, h.db.First(&u, "id = ?", id).Error)
	return &u
}

func (h *harness) eventsFor(t *testing.T, recipient uuid.UUID, typ models.EventType) []models.Event {
	t.Helper()
	var evs []models.Event
	require.NoError(t, h.db.Where("recipient_id = ? AND type = ?", recipient, typ).Order("id").Find(&evs).Error)
	return evs
}

func (h *harness) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func names(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%02d", prefix, i)
	}
	return out
}
