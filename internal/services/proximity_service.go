package services

import (
	"context"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/proximity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NearbyUser struct {
	User           models.User
	DistanceMeters float64
}

// ProximityService evaluates co-presence between accepted connections from
// stored location snapshots. Results are computed fresh on every call.
type ProximityService struct {
	db        *gorm.DB
	clock     clock.Clock
	evaluator proximity.Evaluator
	identity  *IdentityService
}

func NewProximityService(db *gorm.DB, clk clock.Clock, evaluator proximity.Evaluator, identity *IdentityService) *ProximityService {
	return &ProximityService{db: db, clock: clk, evaluator: evaluator, identity: identity}
}

// QueryNearby stores the caller's location, then lists accepted connections
// whose fresh snapshot is within the threshold, closest first. The scan is
// best-effort: store failures are logged and yield an empty list. Only an
// out-of-range location is reported, before anything is written.
func (s *ProximityService) QueryNearby(ctx context.Context, userID uuid.UUID, at proximity.Point) ([]NearbyUser, error) {
	if !at.Valid() {
		return nil, ErrInvalidLocation
	}
	db := s.db.WithContext(ctx)

	if err := s.identity.storeLocation(db, userID, at); err != nil {
		slog.Warn("nearby scan: failed to store caller location", "error", err, "user_id", userID.String())
		return []NearbyUser{}, nil
	}

	now := s.clock.Now()
	ids, err := s.counterpartIDs(db, userID)
	if err != nil {
		slog.Warn("nearby scan: failed to load connections", "error", err, "user_id", userID.String())
		return []NearbyUser{}, nil
	}
	if len(ids) == 0 {
		return []NearbyUser{}, nil
	}

	var users []models.User
	err = db.Where("id IN ? AND location_updated_at >= ?", ids, now.Add(-s.evaluator.Staleness)).
		Find(&users).Error
	if err != nil {
		slog.Warn("nearby scan: failed to load locations", "error", err, "user_id", userID.String())
		return []NearbyUser{}, nil
	}

	byID := make(map[uuid.UUID]models.User, len(users))
	candidates := make([]proximity.Candidate, 0, len(users))
	for _, u := range users {
		byID[u.ID] = u
		candidates = append(candidates, proximity.Candidate{UserID: u.ID, Location: snapshotOf(&u)})
	}

	matches := s.evaluator.Nearby(at, candidates, now)
	out := make([]NearbyUser, 0, len(matches))
	for _, m := range matches {
		out = append(out, NearbyUser{User: byID[m.UserID], DistanceMeters: m.DistanceMeters})
	}
	return out, nil
}

// pairNearby reports whether two locked user rows are currently co-present.
func (s *ProximityService) pairNearby(a, b *models.User) bool {
	_, ok := s.evaluator.PairNearby(snapshotOf(a), snapshotOf(b), s.clock.Now())
	return ok
}

func (s *ProximityService) counterpartIDs(db *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error) {
	var conns []models.Connection
	err := db.Where("status = ? AND (user_a = ? OR user_b = ?)", models.ConnectionAccepted, userID, userID).
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(conns))
	for i := range conns {
		ids = append(ids, conns[i].Other(userID))
	}
	return ids, nil
}

func snapshotOf(u *models.User) *proximity.Snapshot {
	if !u.HasLocation() {
		return nil
	}
	return &proximity.Snapshot{
		Point:      proximity.Point{Latitude: *u.Latitude, Longitude: *u.Longitude},
		RecordedAt: *u.LocationUpdatedAt,
	}
}
