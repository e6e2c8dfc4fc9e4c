package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/database/dbtest"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/proximity"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "test-admin-token"

type testAPI struct {
	app   *fiber.App
	clock *clock.FakeClock
	done  context.CancelFunc
}

// newTestAPI wires the full stack over an in-memory database. The fake
// clock starts at the real current time so minted JWTs validate.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.Fake(time.Now().UTC().Truncate(time.Second))
	policy := config.DefaultPolicy()
	cfg := &config.Config{
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  time.Hour,
		JWTRefreshExpiry: 24 * time.Hour,
		AdminToken:       adminToken,
	}

	hub := events.NewHub()
	feed := events.NewFeed(db, hub, nil, clk)
	moderation := services.NewModerationService()
	identity := services.NewIdentityService(db, clk, policy, moderation)
	prox := services.NewProximityService(db, clk, proximity.NewEvaluator(policy.ProximityThresholdMeters, policy.LocationStaleness), identity)
	connections := services.NewConnectionService(db, clk, feed)
	passes := services.NewPassService(db, clk, policy, prox, feed)
	ratings := services.NewRatingService(db, clk, feed)
	avatars := services.NewAvatarService(nil, "", "", 0, clk)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	app := fiber.New()
	Setup(app, cfg, db, Handlers{
		Auth:        handlers.NewAuthHandler(services.NewAuthService(db, cfg, clk, moderation)),
		Health:      handlers.NewHealthHandler(db, clk),
		Config:      handlers.NewConfigHandler(policy),
		Users:       handlers.NewUserHandler(identity, prox, connections, ratings, avatars),
		Connections: handlers.NewConnectionHandler(connections),
		Passes:      handlers.NewPassHandler(passes, ratings, identity),
		Events:      handlers.NewEventHandler(ctx, feed, time.Hour),
		Admin:       handlers.NewAdminHandler(db, passes),
	})
	return &testAPI{app: app, clock: clk, done: cancel}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := a.app.Test(req, 5000)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type account struct {
	id    uuid.UUID
	token string
}

func (a *testAPI) register(t *testing.T, username string) account {
	t.Helper()
	resp, body := a.do(t, "POST", "/api/auth/register", "", dto.RegisterRequest{
		Email:    username + "@example.com",
		Password: "password123",
		Username: username,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var auth dto.AuthResponse
	require.NoError(t, json.Unmarshal(body, &auth))
	return account{id: auth.User.ID, token: auth.AccessToken}
}

func (a *testAPI) connect(t *testing.T, from, to account) {
	t.Helper()
	resp, body := a.do(t, "POST", "/api/connections", from.token, dto.ConnectionRequest{UserID: to.id})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var conn dto.ConnectionResponse
	require.NoError(t, json.Unmarshal(body, &conn))
	resp, body = a.do(t, "POST", "/api/connections/"+conn.ID.String()+"/accept", to.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
}

func decodeError(t *testing.T, body []byte) dto.ErrorResponse {
	t.Helper()
	var e dto.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e), string(body))
	assert.True(t, e.Error)
	return e
}

func TestPublicEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, "GET", "/api/health", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"db":"ok"`)

	resp, body = api.do(t, "GET", "/api/config", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var cfg dto.ClientConfigResponse
	require.NoError(t, json.Unmarshal(body, &cfg))
	assert.Equal(t, 5, cfg.ProximityPassCap)
	assert.Equal(t, 20, cfg.NearbyPollIntervalSeconds)
	assert.Equal(t, "rating:", cfg.ScanPrefix)

	resp, body = api.do(t, "GET", "/api/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, body).Code)
}

func TestRatingExchangeOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	alice, bob := api.register(t, "alice"), api.register(t, "bob")

	resp, body := api.do(t, "GET", "/api/users/"+bob.id.String(), alice.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var profile dto.ProfileResponse
	require.NoError(t, json.Unmarshal(body, &profile))
	assert.Equal(t, "none", profile.Relationship)

	api.connect(t, alice, bob)

	resp, body = api.do(t, "POST", "/api/users/scan", alice.token, dto.ScanRequest{Code: "rating:" + bob.id.String()})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &profile))
	assert.Equal(t, "connected", profile.Relationship)
	assert.NotNil(t, profile.ConnectionID)

	resp, body = api.do(t, "POST", "/api/passes", alice.token, dto.CreatePassRequest{UserID: bob.id, Kind: "teleport"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_kind", decodeError(t, body).Code)

	resp, body = api.do(t, "POST", "/api/passes", alice.token, dto.CreatePassRequest{UserID: bob.id, Kind: "meet"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var pass dto.PassResponse
	require.NoError(t, json.Unmarshal(body, &pass))
	ratingsPath := "/api/passes/" + pass.ID.String() + "/ratings"

	resp, _ = api.do(t, "POST", ratingsPath, alice.token, dto.SubmitRatingRequest{Score: 9})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body = api.do(t, "POST", ratingsPath, alice.token, dto.SubmitRatingRequest{Score: 5})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var mine dto.RatingResponse
	require.NoError(t, json.Unmarshal(body, &mine))
	assert.Equal(t, bob.id, mine.RateeID)
	assert.False(t, mine.Revealed)

	resp, body = api.do(t, "POST", ratingsPath, alice.token, dto.SubmitRatingRequest{Score: 4})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_rating", decodeError(t, body).Code)

	// Bob cannot see Alice's rating before submitting his own.
	resp, body = api.do(t, "GET", ratingsPath, bob.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var visible []dto.RatingResponse
	require.NoError(t, json.Unmarshal(body, &visible))
	assert.Empty(t, visible)

	resp, body = api.do(t, "POST", ratingsPath, bob.token, dto.SubmitRatingRequest{Score: 4})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))

	resp, body = api.do(t, "GET", ratingsPath, bob.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &visible))
	require.Len(t, visible, 2)
	for _, r := range visible {
		assert.True(t, r.Revealed)
	}

	resp, body = api.do(t, "GET", "/api/me", alice.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var me dto.MeResponse
	require.NoError(t, json.Unmarshal(body, &me))
	assert.InDelta(t, 4.0, me.Score, 1e-9)
	assert.Equal(t, 1, me.RatingCount)

	resp, body = api.do(t, "GET", "/api/leaderboard", alice.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var board []dto.UserResponse
	require.NoError(t, json.Unmarshal(body, &board))
	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].Username)

	resp, body = api.do(t, "POST", "/api/passes/"+uuid.NewString()+"/ratings", alice.token, dto.SubmitRatingRequest{
		RateeID: &bob.id, Score: 3,
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_pass", decodeError(t, body).Code)

	resp, body = api.do(t, "GET", "/api/events", alice.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var feed dto.EventsResponse
	require.NoError(t, json.Unmarshal(body, &feed))
	var types []string
	for _, ev := range feed.Events {
		types = append(types, string(ev.Type))
	}
	assert.Contains(t, types, "connection.accepted")
	assert.Contains(t, types, "rating.revealed")
	require.NotEmpty(t, feed.Events)
	assert.Equal(t, feed.Events[len(feed.Events)-1].ID, feed.Cursor)

	resp, body = api.do(t, "GET", "/api/events?after="+strconv.FormatInt(feed.Cursor, 10), alice.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &feed))
	assert.Empty(t, feed.Events)
}

func TestProximityPassRateLimitOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	alice, bob := api.register(t, "alice"), api.register(t, "bob")

	body := dto.ProximityPassRequest{UserID: bob.id}
	resp, raw := api.do(t, "POST", "/api/passes/proximity", alice.token, body)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "not_nearby", decodeError(t, raw).Code)

	api.connect(t, alice, bob)
	lat, lon := 41.0256, 28.9741
	resp, _ = api.do(t, "PUT", "/api/me/location", bob.token, dto.LocationRequest{Latitude: &lat, Longitude: &lon})
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	body.Latitude, body.Longitude = &lat, &lon
	for i := 0; i < 5; i++ {
		resp, raw = api.do(t, "POST", "/api/passes/proximity", alice.token, body)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	}

	resp, raw = api.do(t, "POST", "/api/passes/proximity", alice.token, body)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "43200", resp.Header.Get("Retry-After"))
	e := decodeError(t, raw)
	assert.Equal(t, "rate_limited", e.Code)
	assert.Equal(t, 43200, e.RetryAfter)

	resp, raw = api.do(t, "POST", "/api/nearby", alice.token, dto.LocationRequest{Latitude: &lat, Longitude: &lon})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var nearby []dto.NearbyUserResponse
	require.NoError(t, json.Unmarshal(raw, &nearby))
	require.Len(t, nearby, 1)
	assert.Equal(t, bob.id, nearby[0].User.ID)

	resp, _ = api.do(t, "POST", "/api/nearby", alice.token, dto.LocationRequest{Latitude: &lat})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConnectionLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	alice, bob, carol := api.register(t, "alice"), api.register(t, "bob"), api.register(t, "carol")

	resp, raw := api.do(t, "POST", "/api/connections", alice.token, dto.ConnectionRequest{UserID: bob.id})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var conn dto.ConnectionResponse
	require.NoError(t, json.Unmarshal(raw, &conn))

	resp, raw = api.do(t, "POST", "/api/connections", bob.token, dto.ConnectionRequest{UserID: alice.id})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_connection", decodeError(t, raw).Code)

	resp, _ = api.do(t, "POST", "/api/connections/"+conn.ID.String()+"/accept", alice.token, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "only the recipient may accept")

	resp, raw = api.do(t, "GET", "/api/connections/requests", bob.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var pending []dto.ConnectionResponse
	require.NoError(t, json.Unmarshal(raw, &pending))
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Counterpart)
	assert.Equal(t, "alice", pending[0].Counterpart.Username)

	resp, _ = api.do(t, "POST", "/api/connections/"+conn.ID.String()+"/decline", bob.token, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, _ = api.do(t, "POST", "/api/connections/not-a-uuid/accept", bob.token, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, "POST", "/api/blocks", carol.token, dto.BlockRequest{UserID: alice.id})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, raw = api.do(t, "POST", "/api/connections", alice.token, dto.ConnectionRequest{UserID: carol.id})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_blocked", decodeError(t, raw).Code)

	resp, raw = api.do(t, "GET", "/api/users/"+carol.id.String(), alice.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var profile dto.ProfileResponse
	require.NoError(t, json.Unmarshal(raw, &profile))
	assert.Equal(t, "blocked", profile.Relationship)
}

func TestProfileEndpoints(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")

	name := "Alice in Chains"
	resp, raw := api.do(t, "PATCH", "/api/me", alice.token, dto.UpdateProfileRequest{DisplayName: &name})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var me dto.MeResponse
	require.NoError(t, json.Unmarshal(raw, &me))
	assert.Equal(t, name, me.DisplayName)
	assert.Equal(t, "rating:"+alice.id.String(), me.ScanCode)

	rude := "shit"
	resp, raw = api.do(t, "PATCH", "/api/me", alice.token, dto.UpdateProfileRequest{DisplayName: &rude})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "content_rejected", decodeError(t, raw).Code)

	resp, raw = api.do(t, "POST", "/api/me/avatar", alice.token, dto.AvatarUploadRequest{ContentType: "image/png", FileSize: 10})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "avatar_unavailable", decodeError(t, raw).Code)

	resp, raw = api.do(t, "GET", "/api/me/ratings", alice.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(raw))

	resp, _ = api.do(t, "GET", "/api/users/"+uuid.NewString(), alice.token, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")

	resp, _ := api.do(t, "POST", "/api/admin/passes/expire", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = api.do(t, "POST", "/api/admin/passes/expire", alice.token, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, raw := api.do(t, "POST", "/api/admin/passes/expire", "", nil, "X-Admin-Token", adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"expired":0}`, string(raw))

	resp, raw = api.do(t, "GET", "/api/admin/logs?level=ERROR", "", nil, "X-Admin-Token", adminToken)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(raw))
}

func TestEventStreamReplaysBacklog(t *testing.T) {
	api := newTestAPI(t)
	alice, bob := api.register(t, "alice"), api.register(t, "bob")
	api.connect(t, alice, bob)

	// With the server already shutting down the stream writes the backlog
	// and returns instead of waiting for live events.
	api.done()

	resp, raw := api.do(t, "GET", "/api/events/stream", bob.token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body := string(raw)
	assert.Contains(t, body, "event: connection.requested\n")
	assert.NotContains(t, body, "event: connection.accepted\n", "acceptance is addressed to the requester")

	resp, raw = api.do(t, "GET", "/api/events/stream", alice.token, nil, "Last-Event-ID", "0")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(raw), "id: "))
	assert.Contains(t, string(raw), "event: connection.accepted\n")

	resp, _ = api.do(t, "GET", "/api/events/stream", alice.token, nil, "Last-Event-ID", "abc")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
