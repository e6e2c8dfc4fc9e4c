package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventConnectionRequested EventType = "connection.requested"
	EventConnectionAccepted  EventType = "connection.accepted"
	EventPassCreated         EventType = "pass.created"
	EventPassExpired         EventType = "pass.expired"
	EventRatingRevealed      EventType = "rating.revealed"
)

// Event is an outbox row written in the same transaction as the state
// transition it describes. ID doubles as the feed cursor.
type Event struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Type        EventType      `gorm:"size:40;not null" json:"type"`
	RecipientID uuid.UUID      `gorm:"type:uuid;not null;index:idx_events_recipient,priority:1" json:"recipient_id"`
	Payload     datatypes.JSON `json:"payload"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}
