package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an identity in the trust graph. Score, RatingCount and RatingSum
// are derived from revealed ratings and written only by the rating engine.
type User struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email             string         `gorm:"not null;size:255;uniqueIndex" json:"-"`
	Password          string         `gorm:"not null" json:"-"`
	Username          string         `gorm:"not null;size:30;uniqueIndex" json:"username"`
	DisplayName       string         `gorm:"size:80" json:"display_name"`
	AvatarURI         string         `gorm:"size:512" json:"avatar_uri"`
	Role              string         `gorm:"size:20;default:'user'" json:"-"`
	Score             float64        `gorm:"not null;default:0;index" json:"score"`
	RatingCount       int            `gorm:"not null;default:0" json:"rating_count"`
	RatingSum         int64          `gorm:"not null;default:0" json:"-"`
	Latitude          *float64       `json:"-"`
	Longitude         *float64       `json:"-"`
	LocationUpdatedAt *time.Time     `gorm:"index" json:"-"`
	IsFixture         bool           `gorm:"default:false" json:"-"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"-"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// ScanPrefix prefixes the user id in the QR code each profile displays.
const ScanPrefix = "rating:"

// ScanCode is the payload the user's profile QR code encodes.
func (u *User) ScanCode() string {
	return ScanPrefix + u.ID.String()
}

// HasLocation reports whether a location snapshot has ever been recorded.
func (u *User) HasLocation() bool {
	return u.Latitude != nil && u.Longitude != nil && u.LocationUpdatedAt != nil
}
