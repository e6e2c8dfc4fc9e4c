package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/proximity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// NormalizeUsername trims and lower-cases a username so uniqueness is
// case-insensitive, then validates its shape.
func NormalizeUsername(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if !usernamePattern.MatchString(name) {
		return "", ErrInvalidUsername
	}
	return name, nil
}

func DefaultAvatarURI(username string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(username)
}

type IdentityService struct {
	db         *gorm.DB
	clock      clock.Clock
	policy     config.Policy
	moderation *ModerationService
}

func NewIdentityService(db *gorm.DB, clk clock.Clock, policy config.Policy, moderation *ModerationService) *IdentityService {
	return &IdentityService{db: db, clock: clk, policy: policy, moderation: moderation}
}

func (s *IdentityService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr("load user", err)
	}
	return &user, nil
}

// FindByUsername looks a user up by handle, normalizing it first.
func (s *IdentityService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	var user models.User
	err = s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr("load user", err)
	}
	return &user, nil
}

// ProfileUpdate carries optional profile edits; nil fields are left alone.
type ProfileUpdate struct {
	DisplayName *string
	AvatarURI   *string
}

func (s *IdentityService) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*models.User, error) {
	changes := map[string]interface{}{}
	if upd.DisplayName != nil {
		name, err := s.moderation.CheckDisplayName(*upd.DisplayName)
		if err != nil {
			return nil, err
		}
		changes["display_name"] = name
	}
	if upd.AvatarURI != nil {
		uri := strings.TrimSpace(*upd.AvatarURI)
		if uri != "" {
			u, err := url.Parse(uri)
			if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
				return nil, ErrInvalidAvatarURI
			}
		}
		changes["avatar_uri"] = uri
	}

	if len(changes) > 0 {
		result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(changes)
		if result.Error != nil {
			return nil, storeErr("update profile", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}
	return s.GetUser(ctx, id)
}

// UpdateLocation records the caller's location snapshot stamped with now.
func (s *IdentityService) UpdateLocation(ctx context.Context, id uuid.UUID, p proximity.Point) error {
	if !p.Valid() {
		return ErrInvalidLocation
	}
	return s.storeLocation(s.db.WithContext(ctx), id, p)
}

func (s *IdentityService) storeLocation(db *gorm.DB, id uuid.UUID, p proximity.Point) error {
	result := db.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"latitude":            p.Latitude,
		"longitude":           p.Longitude,
		"location_updated_at": s.clock.Now(),
	})
	if result.Error != nil {
		return storeErr("update location", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Leaderboard ranks users by score, breaking ties by rating volume and then
// username. Users with no revealed ratings are listed after everyone else.
func (s *IdentityService) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	limit = clampLimit(limit, s.policy.LeaderboardDefaultLimit, s.policy.LeaderboardMaxLimit)
	var users []models.User
	err := s.db.WithContext(ctx).
		Order("score DESC").
		Order("rating_count DESC").
		Order("username ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, storeErr("load leaderboard", err)
	}
	return users, nil
}

// ResolveScan turns a scanned QR payload into a user. Both the prefixed
// form and a bare id are accepted.
func (s *IdentityService) ResolveScan(ctx context.Context, code string) (*models.User, error) {
	code = strings.TrimSpace(code)
	code = strings.TrimPrefix(code, models.ScanPrefix)
	id, err := uuid.Parse(code)
	if err != nil {
		return nil, ErrInvalidScanCode
	}
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	slog.Info("scan resolved", "action", "scan_resolve", "user_id", user.ID.String())
	return user, nil
}
