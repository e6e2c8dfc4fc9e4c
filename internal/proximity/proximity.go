// Package proximity decides which counterparts are physically close enough
// to count as co-present. It is pure: callers supply location snapshots
// and the current time, and nothing is cached between calls.
package proximity

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

const (
	DefaultThresholdMeters = 50.0
	DefaultStaleness       = 30 * time.Minute
)

type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether p lies within the geographic coordinate ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Snapshot is a last-known position and when it was recorded.
type Snapshot struct {
	Point
	RecordedAt time.Time
}

// Candidate is a counterpart whose snapshot may be missing.
type Candidate struct {
	UserID   uuid.UUID
	Location *Snapshot
}

type Match struct {
	UserID         uuid.UUID
	DistanceMeters float64
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Evaluator applies the nearby predicate: distance <= ThresholdMeters and
// snapshot age <= Staleness. Both bounds are inclusive.
type Evaluator struct {
	ThresholdMeters float64
	Staleness       time.Duration
}

func NewEvaluator(thresholdMeters float64, staleness time.Duration) Evaluator {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return Evaluator{ThresholdMeters: thresholdMeters, Staleness: staleness}
}

// Fresh reports whether s was recorded within the staleness window of now.
// A nil snapshot is never fresh.
func (e Evaluator) Fresh(s *Snapshot, now time.Time) bool {
	if s == nil || s.RecordedAt.IsZero() {
		return false
	}
	return now.Sub(s.RecordedAt) <= e.Staleness
}

// Within reports whether a and b are at most ThresholdMeters apart.
func (e Evaluator) Within(a, b Point) (float64, bool) {
	d := Distance(a, b)
	return d, d <= e.ThresholdMeters
}

// Nearby filters candidates against origin and returns the matches ordered
// by ascending distance, ties broken by user id.
func (e Evaluator) Nearby(origin Point, candidates []Candidate, now time.Time) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if !e.Fresh(c.Location, now) {
			continue
		}
		d, ok := e.Within(origin, c.Location.Point)
		if !ok {
			continue
		}
		matches = append(matches, Match{UserID: c.UserID, DistanceMeters: d})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceMeters != matches[j].DistanceMeters {
			return matches[i].DistanceMeters < matches[j].DistanceMeters
		}
		return matches[i].UserID.String() < matches[j].UserID.String()
	})
	return matches
}

// PairNearby is the predicate for a proximity pass: both snapshots fresh
// and within the threshold of each other.
func (e Evaluator) PairNearby(a, b *Snapshot, now time.Time) (float64, bool) {
	if !e.Fresh(a, now) || !e.Fresh(b, now) {
		return 0, false
	}
	return e.Within(a.Point, b.Point)
}
