package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the engine tunables. The proximity rate-limit constants
// changed between app revisions, so none of these are fixed contracts.
type Policy struct {
	ProximityThresholdMeters float64       `yaml:"proximity_threshold_meters" json:"proximity_threshold_meters"`
	LocationStaleness        time.Duration `yaml:"location_staleness" json:"-"`
	ProximityPassCap         int           `yaml:"proximity_pass_cap" json:"proximity_pass_cap"`
	ProximityPassWindow      time.Duration `yaml:"proximity_pass_window" json:"-"`
	RatingWindow             time.Duration `yaml:"rating_window" json:"-"`
	NearbyPollInterval       time.Duration `yaml:"nearby_poll_interval" json:"-"`
	LeaderboardDefaultLimit  int           `yaml:"leaderboard_default_limit" json:"leaderboard_default_limit"`
	LeaderboardMaxLimit      int           `yaml:"leaderboard_max_limit" json:"leaderboard_max_limit"`
	JanitorInterval          time.Duration `yaml:"janitor_interval" json:"-"`
	EventRetention           time.Duration `yaml:"event_retention" json:"-"`
	LogRetention             time.Duration `yaml:"log_retention" json:"-"`
}

func DefaultPolicy() Policy {
	return Policy{
		ProximityThresholdMeters: 50,
		LocationStaleness:        30 * time.Minute,
		ProximityPassCap:         5,
		ProximityPassWindow:      12 * time.Hour,
		RatingWindow:             7 * 24 * time.Hour,
		NearbyPollInterval:       20 * time.Second,
		LeaderboardDefaultLimit:  50,
		LeaderboardMaxLimit:      100,
		JanitorInterval:          10 * time.Minute,
		EventRetention:           30 * 24 * time.Hour,
		LogRetention:             30 * 24 * time.Hour,
	}
}

// LoadPolicy reads a YAML policy file over the defaults. A missing file is
// not an error; the defaults apply.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	switch {
	case p.ProximityThresholdMeters <= 0:
		return errors.New("policy: proximity_threshold_meters must be positive")
	case p.LocationStaleness <= 0:
		return errors.New("policy: location_staleness must be positive")
	case p.ProximityPassCap < 1:
		return errors.New("policy: proximity_pass_cap must be at least 1")
	case p.ProximityPassWindow <= 0:
		return errors.New("policy: proximity_pass_window must be positive")
	case p.RatingWindow <= 0:
		return errors.New("policy: rating_window must be positive")
	case p.LeaderboardDefaultLimit < 1 || p.LeaderboardMaxLimit < p.LeaderboardDefaultLimit:
		return errors.New("policy: leaderboard limits are inconsistent")
	case p.JanitorInterval <= 0:
		return errors.New("policy: janitor_interval must be positive")
	}
	return nil
}
