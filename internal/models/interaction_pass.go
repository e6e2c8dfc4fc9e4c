package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PassKind string

const (
	PassMeet         PassKind = "meet"
	PassCall         PassKind = "call"
	PassChat         PassKind = "chat"
	PassGPSProximity PassKind = "gps_proximity"
)

// Manual reports whether the kind is created by hand rather than by GPS co-presence.
func (k PassKind) Manual() bool {
	return k == PassMeet || k == PassCall || k == PassChat
}

type PassStatus string

const (
	PassPending   PassStatus = "pending"
	PassConfirmed PassStatus = "confirmed"
	PassExpired   PassStatus = "expired"
)

// InteractionPass is an encounter window between two users against which
// each may submit one rating.
type InteractionPass struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Kind        PassKind   `gorm:"size:20;not null" json:"kind"`
	UserA       uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_a"`
	UserB       uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_b"`
	PairKey     string     `gorm:"size:73;not null;index:idx_passes_pair_created,priority:1" json:"-"`
	Status      PassStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	CreatedAt   time.Time  `gorm:"index:idx_passes_pair_created,priority:2" json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ExpiresAt   time.Time  `gorm:"index" json:"expires_at"`
}

func (p *InteractionPass) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PairKey == "" {
		p.PairKey = PairKey(p.UserA, p.UserB)
	}
	return nil
}

func (InteractionPass) TableName() string {
	return "interaction_passes"
}

func (p *InteractionPass) Involves(id uuid.UUID) bool {
	return p.UserA == id || p.UserB == id
}

func (p *InteractionPass) Other(self uuid.UUID) uuid.UUID {
	if p.UserA == self {
		return p.UserB
	}
	return p.UserA
}
