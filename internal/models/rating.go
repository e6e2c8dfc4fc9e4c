package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MinScore = 1
	MaxScore = 5
)

// Rating is one direction of a double-blind exchange. It stays unrevealed
// until the counterpart's rating for the same pass exists.
type Rating struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PassID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_ratings_pass_rater,priority:1" json:"pass_id"`
	RaterID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_ratings_pass_rater,priority:2" json:"rater_id"`
	RateeID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_ratings_ratee_revealed,priority:1" json:"ratee_id"`
	Score      int        `gorm:"not null" json:"score"`
	Revealed   bool       `gorm:"not null;default:false;index:idx_ratings_ratee_revealed,priority:2" json:"revealed"`
	RevealedAt *time.Time `json:"revealed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (r *Rating) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
