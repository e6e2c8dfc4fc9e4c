package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionBlocked  ConnectionStatus = "blocked"
)

// Connection links two users. UserA is always the requester. PairKey is the
// direction-free identity of the pair and carries the uniqueness constraint:
// declines delete the row and blocks are terminal, so a pair never needs a
// second row.
type Connection struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserA     uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_a"`
	UserB     uuid.UUID        `gorm:"type:uuid;not null;index:idx_connections_status_user_b,priority:2" json:"user_b"`
	PairKey   string           `gorm:"size:73;not null;uniqueIndex" json:"-"`
	Status    ConnectionStatus `gorm:"size:20;not null;default:'pending';index:idx_connections_status_user_b,priority:1" json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (c *Connection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.PairKey == "" {
		c.PairKey = PairKey(c.UserA, c.UserB)
	}
	return nil
}

// Other returns the counterpart of self in the connection.
func (c *Connection) Other(self uuid.UUID) uuid.UUID {
	if c.UserA == self {
		return c.UserB
	}
	return c.UserA
}

func (c *Connection) Involves(id uuid.UUID) bool {
	return c.UserA == id || c.UserB == id
}

// PairKey returns the canonical key for the unordered pair {a, b}.
func PairKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if as > bs {
		as, bs = bs, as
	}
	return as + ":" + bs
}
