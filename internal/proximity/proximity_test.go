package proximity

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func snap(lat, lon float64, age time.Duration) *Snapshot {
	return &Snapshot{Point: Point{Latitude: lat, Longitude: lon}, RecordedAt: now.Add(-age)}
}

func TestDistance(t *testing.T) {
	oneDegree := EarthRadiusMeters * math.Pi / 180

	assert.InDelta(t, 0, Distance(Point{10, 10}, Point{10, 10}), 1e-9)
	assert.InDelta(t, oneDegree, Distance(Point{0, 0}, Point{1, 0}), 1e-6)
	assert.InDelta(t, oneDegree, Distance(Point{0, 0}, Point{0, 1}), 1e-6)
	// symmetric
	a, b := Point{40.7128, -74.0060}, Point{51.5074, -0.1278}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-6)
	assert.InDelta(t, 5570e3, Distance(a, b), 10e3)
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{0, 0}.Valid())
	assert.True(t, Point{-90, 180}.Valid())
	assert.False(t, Point{91, 0}.Valid())
	assert.False(t, Point{0, -181}.Valid())
	assert.False(t, Point{math.NaN(), 0}.Valid())
}

func TestNearbyThresholdIsInclusive(t *testing.T) {
	origin := Point{Latitude: 48.8566, Longitude: 2.3522}
	target := snap(48.8570, 2.3522, time.Minute)
	d := Distance(origin, target.Point)

	atThreshold := NewEvaluator(d, DefaultStaleness)
	matches := atThreshold.Nearby(origin, []Candidate{{UserID: uuid.New(), Location: target}}, now)
	require.Len(t, matches, 1)
	assert.InDelta(t, d, matches[0].DistanceMeters, 1e-9)

	justBelow := NewEvaluator(d-0.01, DefaultStaleness)
	assert.Empty(t, justBelow.Nearby(origin, []Candidate{{UserID: uuid.New(), Location: target}}, now))
}

func TestNearbyExcludesStaleAndMissing(t *testing.T) {
	e := NewEvaluator(50, 30*time.Minute)
	origin := Point{Latitude: 0, Longitude: 0}

	fresh := Candidate{UserID: uuid.New(), Location: snap(0, 0.0001, 30*time.Minute)}
	stale := Candidate{UserID: uuid.New(), Location: snap(0, 0, 30*time.Minute+time.Second)}
	missing := Candidate{UserID: uuid.New()}

	matches := e.Nearby(origin, []Candidate{stale, missing, fresh}, now)
	require.Len(t, matches, 1)
	assert.Equal(t, fresh.UserID, matches[0].UserID)
}

func TestNearbyOrderedByDistance(t *testing.T) {
	e := NewEvaluator(1000, time.Hour)
	origin := Point{Latitude: 0, Longitude: 0}

	far := Candidate{UserID: uuid.New(), Location: snap(0, 0.005, 0)}
	near := Candidate{UserID: uuid.New(), Location: snap(0, 0.001, 0)}
	mid := Candidate{UserID: uuid.New(), Location: snap(0, 0.003, 0)}
	outside := Candidate{UserID: uuid.New(), Location: snap(0, 0.02, 0)}

	matches := e.Nearby(origin, []Candidate{far, outside, near, mid}, now)
	require.Len(t, matches, 3)
	assert.Equal(t, near.UserID, matches[0].UserID)
	assert.Equal(t, mid.UserID, matches[1].UserID)
	assert.Equal(t, far.UserID, matches[2].UserID)
}

func TestPairNearby(t *testing.T) {
	e := NewEvaluator(50, 30*time.Minute)

	_, ok := e.PairNearby(snap(0, 0, 0), snap(0, 0.0003, 0), now)
	assert.True(t, ok, "about 33m apart")

	_, ok = e.PairNearby(snap(0, 0, 0), snap(0, 0.0005, 0), now)
	assert.False(t, ok, "about 55m apart")

	_, ok = e.PairNearby(snap(0, 0, time.Hour), snap(0, 0, 0), now)
	assert.False(t, ok, "stale origin")

	_, ok = e.PairNearby(nil, snap(0, 0, 0), now)
	assert.False(t, ok)
}

func TestNewEvaluatorDefaults(t *testing.T) {
	e := NewEvaluator(0, 0)
	assert.Equal(t, DefaultThresholdMeters, e.ThresholdMeters)
	assert.Equal(t, DefaultStaleness, e.Staleness)
}
