package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/database/dbtest"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiHandlerFansOutByLevel(t *testing.T) {
	var info, errs bytes.Buffer
	logger := slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	))

	logger.Info("pass created", "action", "pass_create")
	logger.Error("reveal failed", "action", "rating_submit")

	assert.Contains(t, info.String(), "pass created")
	assert.Contains(t, info.String(), "reveal failed")
	assert.NotContains(t, errs.String(), "pass created")
	assert.Contains(t, errs.String(), "reveal failed")
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandlerKeepsWritingWhenOneSinkFails(t *testing.T) {
	var out bytes.Buffer
	h := logging.NewMultiHandler(
		failingHandler{slog.NewJSONHandler(&bytes.Buffer{}, nil)},
		slog.NewJSONHandler(&out, nil),
	)

	rec := slog.NewRecord(time.Now(), slog.LevelError, "store unavailable", 0)
	err := h.Handle(context.Background(), rec)
	assert.ErrorContains(t, err, "sink down")
	assert.Contains(t, out.String(), "store unavailable")
}

func TestPGHandlerPersistsErrors(t *testing.T) {
	db := dbtest.Open(t)
	h := logging.NewPGHandler(db)
	defer h.Stop()

	logger := slog.New(h).With("request_id", "req-1")
	logger.Info("ignored")
	logger.Error("aggregate failed", "action", "rating_submit", "user_id", "u-1", "error", "boom", "pass_id", "p-1")
	h.Flush()

	var logs []models.SystemLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	entry := logs[0]
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "aggregate failed", entry.Message)
	assert.Equal(t, "req-1", entry.TraceID)
	assert.Equal(t, "rating_submit", entry.Action)
	assert.Equal(t, "boom", entry.Error)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-1", *entry.UserID)

	var extra map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Extra, &extra))
	assert.Equal(t, "p-1", extra["pass_id"])
}

func TestPruneAndListSystemLogs(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&[]models.SystemLog{
		{ID: uuid.New(), Timestamp: now.AddDate(0, 0, -40), Level: "ERROR", Message: "old"},
		{ID: uuid.New(), Timestamp: now.AddDate(0, 0, -1), Level: "ERROR", Message: "recent"},
		{ID: uuid.New(), Timestamp: now, Level: "WARN", Message: "newest"},
	}).Error)

	n, err := logging.PruneSystemLogs(ctx, db, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	logs, err := logging.RecentSystemLogs(ctx, db, "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "newest", logs[0].Message)

	logs, err = logging.RecentSystemLogs(ctx, db, "ERROR", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "recent", logs[0].Message)
}
