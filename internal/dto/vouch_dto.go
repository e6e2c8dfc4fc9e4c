package dto

import (
	"encoding/json"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/google/uuid"
)

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURI   string    `json:"avatar_uri"`
	Score       float64   `json:"score"`
	RatingCount int       `json:"rating_count"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURI:   u.AvatarURI,
		Score:       u.Score,
		RatingCount: u.RatingCount,
	}
}

func NewUserResponses(users []models.User) []UserResponse {
	out := make([]UserResponse, len(users))
	for i := range users {
		out[i] = NewUserResponse(&users[i])
	}
	return out
}

// MeResponse is the caller's own profile.
type MeResponse struct {
	UserResponse
	Email             string     `json:"email"`
	ScanCode          string     `json:"scan_code"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	LocationUpdatedAt *time.Time `json:"location_updated_at,omitempty"`
}

func NewMeResponse(u *models.User) MeResponse {
	return MeResponse{
		UserResponse:      NewUserResponse(u),
		Email:             u.Email,
		ScanCode:          u.ScanCode(),
		Latitude:          u.Latitude,
		Longitude:         u.Longitude,
		LocationUpdatedAt: u.LocationUpdatedAt,
	}
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarURI   *string `json:"avatar_uri"`
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type NearbyUserResponse struct {
	User           UserResponse `json:"user"`
	DistanceMeters float64      `json:"distance_meters"`
}

type ScanRequest struct {
	Code string `json:"code"`
}

// ProfileResponse is another user's profile as seen by the caller.
type ProfileResponse struct {
	User         UserResponse `json:"user"`
	Relationship string       `json:"relationship"`
	ConnectionID *uuid.UUID   `json:"connection_id,omitempty"`
}

type ConnectionRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type ConnectionResponse struct {
	ID          uuid.UUID               `json:"id"`
	Status      models.ConnectionStatus `json:"status"`
	UserA       uuid.UUID               `json:"user_a"`
	UserB       uuid.UUID               `json:"user_b"`
	Counterpart *UserResponse           `json:"counterpart,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

func NewConnectionResponse(c *models.Connection, counterpart *models.User) ConnectionResponse {
	resp := ConnectionResponse{
		ID:        c.ID,
		Status:    c.Status,
		UserA:     c.UserA,
		UserB:     c.UserB,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if counterpart != nil {
		u := NewUserResponse(counterpart)
		resp.Counterpart = &u
	}
	return resp
}

type BlockRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type CreatePassRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Kind   string    `json:"kind"`
}

// ProximityPassRequest may carry the caller's current location, which is
// stored before co-presence is evaluated.
type ProximityPassRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
}

type PassResponse struct {
	ID          uuid.UUID         `json:"id"`
	Kind        models.PassKind   `json:"kind"`
	UserA       uuid.UUID         `json:"user_a"`
	UserB       uuid.UUID         `json:"user_b"`
	Status      models.PassStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

func NewPassResponse(p *models.InteractionPass) PassResponse {
	return PassResponse{
		ID:          p.ID,
		Kind:        p.Kind,
		UserA:       p.UserA,
		UserB:       p.UserB,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		ConfirmedAt: p.ConfirmedAt,
		ExpiresAt:   p.ExpiresAt,
	}
}

func NewPassResponses(passes []models.InteractionPass) []PassResponse {
	out := make([]PassResponse, len(passes))
	for i := range passes {
		out[i] = NewPassResponse(&passes[i])
	}
	return out
}

// SubmitRatingRequest rates the other party of a pass. RateeID defaults to
// the caller's counterpart on the pass.
type SubmitRatingRequest struct {
	RateeID *uuid.UUID `json:"ratee_id"`
	Score   int        `json:"score"`
}

type RatingResponse struct {
	ID         uuid.UUID  `json:"id"`
	PassID     uuid.UUID  `json:"pass_id"`
	RaterID    uuid.UUID  `json:"rater_id"`
	RateeID    uuid.UUID  `json:"ratee_id"`
	Score      int        `json:"score"`
	Revealed   bool       `json:"revealed"`
	RevealedAt *time.Time `json:"revealed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func NewRatingResponse(r *models.Rating) RatingResponse {
	return RatingResponse{
		ID:         r.ID,
		PassID:     r.PassID,
		RaterID:    r.RaterID,
		RateeID:    r.RateeID,
		Score:      r.Score,
		Revealed:   r.Revealed,
		RevealedAt: r.RevealedAt,
		CreatedAt:  r.CreatedAt,
	}
}

func NewRatingResponses(ratings []models.Rating) []RatingResponse {
	out := make([]RatingResponse, len(ratings))
	for i := range ratings {
		out[i] = NewRatingResponse(&ratings[i])
	}
	return out
}

type EventResponse struct {
	ID        int64            `json:"id"`
	Type      models.EventType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
	CreatedAt time.Time        `json:"created_at"`
}

func NewEventResponse(ev *models.Event) EventResponse {
	return EventResponse{
		ID:        ev.ID,
		Type:      ev.Type,
		Payload:   json.RawMessage(ev.Payload),
		CreatedAt: ev.CreatedAt,
	}
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
	Cursor int64           `json:"cursor"`
}

type AvatarUploadRequest struct {
	ContentType string `json:"content_type"`
	FileSize    int64  `json:"file_size"`
}

type AvatarUploadResponse struct {
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	AvatarURI string            `json:"avatar_uri"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// ClientConfigResponse exposes the tunables a client needs to pace itself.
type ClientConfigResponse struct {
	ProximityThresholdMeters  float64 `json:"proximity_threshold_meters"`
	LocationStalenessSeconds  int     `json:"location_staleness_seconds"`
	NearbyPollIntervalSeconds int     `json:"nearby_poll_interval_seconds"`
	ProximityPassCap          int     `json:"proximity_pass_cap"`
	ProximityPassWindowHours  float64 `json:"proximity_pass_window_hours"`
	RatingWindowHours         float64 `json:"rating_window_hours"`
	LeaderboardMaxLimit       int     `json:"leaderboard_max_limit"`
	ScanPrefix                string  `json:"scan_prefix"`
}

type ExpireResponse struct {
	Expired int `json:"expired"`
}
