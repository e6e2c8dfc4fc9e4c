package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Block is one-directional. Its existence in either direction suppresses
// connection and pass creation between the pair.
type Block struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BlockerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_blocks_pair,priority:1" json:"blocker_id"`
	BlockedID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_blocks_pair,priority:2;index" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (b *Block) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (Block) TableName() string {
	return "blocks"
}
