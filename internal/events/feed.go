// Package events is the outbound change feed. Engine transitions append
// rows to the events table inside their own transaction; after commit the
// rows are broadcast to live subscribers, and clients that were offline
// read them back by cursor.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConnectionPayload struct {
	ConnectionID uuid.UUID `json:"connection_id"`
	FromUserID   uuid.UUID `json:"from_user_id"`
}

type PassPayload struct {
	PassID     uuid.UUID         `json:"pass_id"`
	Kind       models.PassKind   `json:"kind"`
	Status     models.PassStatus `json:"status"`
	FromUserID uuid.UUID         `json:"from_user_id"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

type RatingRevealedPayload struct {
	PassID   uuid.UUID `json:"pass_id"`
	RatingID uuid.UUID `json:"rating_id"`
	RaterID  uuid.UUID `json:"rater_id"`
	Score    int       `json:"score"`
}

type PassExpiredPayload struct {
	PassID        uuid.UUID `json:"pass_id"`
	VoidedRatings int64     `json:"voided_ratings"`
}

// Broadcaster pushes committed events toward live subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, evs []models.Event) error
}

type Feed struct {
	db          *gorm.DB
	hub         *Hub
	broadcaster Broadcaster
	clock       clock.Clock
}

// NewFeed wires a feed. A nil broadcaster delivers straight to hub.
func NewFeed(db *gorm.DB, hub *Hub, broadcaster Broadcaster, clk clock.Clock) *Feed {
	if broadcaster == nil {
		broadcaster = NewLocalBroadcaster(hub)
	}
	return &Feed{db: db, hub: hub, broadcaster: broadcaster, clock: clk}
}

// Record appends an event using tx, the caller's open transaction. The row
// commits or rolls back with the transition it describes.
func (f *Feed) Record(tx *gorm.DB, typ models.EventType, recipient uuid.UUID, payload any) (models.Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to encode %s payload: %w", typ, err)
	}
	ev := models.Event{
		Type:        typ,
		RecipientID: recipient,
		Payload:     datatypes.JSON(body),
		CreatedAt:   f.clock.Now(),
	}
	if err := tx.Create(&ev).Error; err != nil {
		return models.Event{}, fmt.Errorf("failed to record %s event: %w", typ, err)
	}
	return ev, nil
}

// Publish broadcasts events that have already committed. Failures are
// logged only: the rows stay readable through Since.
func (f *Feed) Publish(ctx context.Context, evs ...models.Event) {
	if len(evs) == 0 {
		return
	}
	if err := f.broadcaster.Broadcast(ctx, evs); err != nil {
		slog.Error("event broadcast failed", "error", err, "count", len(evs))
	}
}

// Since returns recipient's events with id > after, oldest first.
func (f *Feed) Since(ctx context.Context, recipient uuid.UUID, after int64, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	var evs []models.Event
	err := f.db.WithContext(ctx).
		Where("recipient_id = ? AND id > ?", recipient, after).
		Order("id ASC").
		Limit(limit).
		Find(&evs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return evs, nil
}

func (f *Feed) Subscribe(recipient uuid.UUID) *Subscription {
	return f.hub.Subscribe(recipient)
}

// Prune deletes events created before cutoff.
func (f *Feed) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result := f.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Event{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Broadcast(_ context.Context, evs []models.Event) error {
	for _, ev := range evs {
		b.hub.Deliver(ev)
	}
	return nil
}
