package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const expireBatchSize = 200

// PassService issues interaction passes and retires them once their rating
// window closes.
type PassService struct {
	db        *gorm.DB
	clock     clock.Clock
	policy    config.Policy
	proximity *ProximityService
	feed      *events.Feed
}

func NewPassService(db *gorm.DB, clk clock.Clock, policy config.Policy, prox *ProximityService, feed *events.Feed) *PassService {
	return &PassService{db: db, clock: clk, policy: policy, proximity: prox, feed: feed}
}

// CreateManualPass opens a pending meet, call or chat pass between two
// connected users.
func (s *PassService) CreateManualPass(ctx context.Context, userA, userB uuid.UUID, kind models.PassKind) (*models.InteractionPass, error) {
	if !kind.Manual() {
		return nil, ErrInvalidKind
	}
	if userA == userB {
		return nil, ErrSelfAction
	}

	var pass models.InteractionPass
	var emitted []models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPair(tx, userA, userB); err != nil {
			return err
		}
		if err := s.checkPair(tx, userA, userB, ErrNotConnected); err != nil {
			return err
		}

		now := s.clock.Now()
		pass = models.InteractionPass{
			Kind:      kind,
			UserA:     userA,
			UserB:     userB,
			Status:    models.PassPending,
			CreatedAt: now,
			ExpiresAt: now.Add(s.policy.RatingWindow),
		}
		ev, err := s.insert(tx, &pass)
		if err != nil {
			return err
		}
		emitted = append(emitted, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.feed.Publish(ctx, emitted...)
	slog.Info("pass created", "action", "pass_create", "kind", string(kind),
		"user_id", userA.String(), "pass_id", pass.ID.String())
	return &pass, nil
}

// CreateProximityPass issues a confirmed pass when two connected users are
// co-present, subject to the pair-scoped rate limit.
func (s *PassService) CreateProximityPass(ctx context.Context, userA, userB uuid.UUID) (*models.InteractionPass, error) {
	if userA == userB {
		return nil, ErrSelfAction
	}

	var pass models.InteractionPass
	var emitted []models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := lockPair(tx, userA, userB)
		if err != nil {
			return err
		}
		if err := s.checkPair(tx, userA, userB, ErrNotNearby); err != nil {
			return err
		}
		if !s.proximity.pairNearby(users[userA], users[userB]) {
			return ErrNotNearby
		}

		now := s.clock.Now()
		if err := s.checkRateLimit(tx, models.PairKey(userA, userB), now); err != nil {
			return err
		}

		pass = models.InteractionPass{
			Kind:        models.PassGPSProximity,
			UserA:       userA,
			UserB:       userB,
			Status:      models.PassConfirmed,
			CreatedAt:   now,
			ConfirmedAt: &now,
			ExpiresAt:   now.Add(s.policy.RatingWindow),
		}
		ev, err := s.insert(tx, &pass)
		if err != nil {
			return err
		}
		emitted = append(emitted, ev)
		return nil
	})
	if err != nil {
		var rl *RateLimitError
		if errors.As(err, &rl) {
			slog.Info("proximity pass rate limited", "action", "pass_rate_limited",
				"user_id", userA.String(), "retry_after", rl.RetryAfter.String())
		}
		return nil, err
	}

	s.feed.Publish(ctx, emitted...)
	slog.Info("pass created", "action", "pass_create", "kind", string(models.PassGPSProximity),
		"user_id", userA.String(), "pass_id", pass.ID.String())
	return &pass, nil
}

// checkPair rejects blocked pairs, then pairs without an accepted connection
// using notConnected as the failure.
func (s *PassService) checkPair(tx *gorm.DB, a, b uuid.UUID, notConnected error) error {
	blocked, err := blockExists(tx, a, b)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlocked
	}
	connected, err := isConnected(tx, a, b)
	if err != nil {
		return err
	}
	if !connected {
		return notConnected
	}
	return nil
}

// checkRateLimit counts passes of any kind for the pair inside the trailing
// window. Callers hold the pair lock, so the count and the following insert
// cannot interleave with another issuance for the same pair.
func (s *PassService) checkRateLimit(tx *gorm.DB, pairKey string, now time.Time) error {
	windowStart := now.Add(-s.policy.ProximityPassWindow)
	var recent []models.InteractionPass
	err := tx.Select("id", "created_at").
		Where("pair_key = ? AND created_at > ?", pairKey, windowStart).
		Order("created_at ASC").
		Find(&recent).Error
	if err != nil {
		return storeErr("count recent passes", err)
	}
	if len(recent) < s.policy.ProximityPassCap {
		return nil
	}
	retry := recent[0].CreatedAt.Add(s.policy.ProximityPassWindow).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return &RateLimitError{RetryAfter: retry}
}

func (s *PassService) insert(tx *gorm.DB, pass *models.InteractionPass) (models.Event, error) {
	if err := tx.Create(pass).Error; err != nil {
		return models.Event{}, storeErr("create pass", err)
	}
	return s.feed.Record(tx, models.EventPassCreated, pass.UserB, events.PassPayload{
		PassID:     pass.ID,
		Kind:       pass.Kind,
		Status:     pass.Status,
		FromUserID: pass.UserA,
		ExpiresAt:  pass.ExpiresAt,
	})
}

// ConfirmPass lets the recipient acknowledge a pending manual pass.
func (s *PassService) ConfirmPass(ctx context.Context, passID, actor uuid.UUID) (*models.InteractionPass, error) {
	var pass models.InteractionPass
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&pass, "id = ?", passID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPassNotFound
		}
		if err != nil {
			return storeErr("load pass", err)
		}
		if !pass.Involves(actor) {
			return ErrPassNotFound
		}
		if pass.UserB != actor {
			return ErrForbidden
		}
		now := s.clock.Now()
		if pass.Status != models.PassPending || !now.Before(pass.ExpiresAt) {
			return ErrInvalidState
		}

		result := tx.Model(&models.InteractionPass{}).
			Where("id = ? AND status = ?", pass.ID, models.PassPending).
			Updates(map[string]interface{}{"status": models.PassConfirmed, "confirmed_at": now})
		if result.Error != nil {
			return storeErr("confirm pass", result.Error)
		}
		if result.RowsAffected != 1 {
			return ErrInvalidState
		}
		pass.Status = models.PassConfirmed
		pass.ConfirmedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("pass confirmed", "action", "pass_confirm", "user_id", actor.String(), "pass_id", pass.ID.String())
	return &pass, nil
}

// GetPass returns a pass visible to viewer. Passes the viewer is not part
// of are reported as missing.
func (s *PassService) GetPass(ctx context.Context, passID, viewer uuid.UUID) (*models.InteractionPass, error) {
	var pass models.InteractionPass
	err := s.db.WithContext(ctx).First(&pass, "id = ?", passID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPassNotFound
	}
	if err != nil {
		return nil, storeErr("load pass", err)
	}
	if !pass.Involves(viewer) {
		return nil, ErrPassNotFound
	}
	return &pass, nil
}

// ListPasses returns the user's most recent passes, newest first.
func (s *PassService) ListPasses(ctx context.Context, userID uuid.UUID, limit int) ([]models.InteractionPass, error) {
	limit = clampLimit(limit, 50, 200)
	var passes []models.InteractionPass
	err := s.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&passes).Error
	if err != nil {
		return nil, storeErr("list passes", err)
	}
	return passes, nil
}

// ExpireStale retires passes whose rating window has closed. Unrevealed
// ratings on those passes are voided so no half of a double-blind pair is
// left pending forever. Returns the number of passes expired.
func (s *PassService) ExpireStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	total := 0
	for {
		n, err := s.expireBatch(ctx, now)
		total += n
		if err != nil {
			return total, err
		}
		if n < expireBatchSize {
			return total, nil
		}
	}
}

func (s *PassService) expireBatch(ctx context.Context, now time.Time) (int, error) {
	var emitted []models.Event
	var expired int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var passes []models.InteractionPass
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ? AND expires_at <= ?", []models.PassStatus{models.PassPending, models.PassConfirmed}, now).
			Order("expires_at ASC").
			Limit(expireBatchSize).
			Find(&passes).Error
		if err != nil {
			return storeErr("load stale passes", err)
		}

		for _, p := range passes {
			if err := tx.Model(&models.InteractionPass{}).Where("id = ?", p.ID).
				Update("status", models.PassExpired).Error; err != nil {
				return storeErr("expire pass", err)
			}
			voided := tx.Where("pass_id = ? AND revealed = ?", p.ID, false).Delete(&models.Rating{})
			if voided.Error != nil {
				return storeErr("void ratings", voided.Error)
			}
			payload := events.PassExpiredPayload{PassID: p.ID, VoidedRatings: voided.RowsAffected}
			for _, recipient := range []uuid.UUID{p.UserA, p.UserB} {
				ev, err := s.feed.Record(tx, models.EventPassExpired, recipient, payload)
				if err != nil {
					return err
				}
				emitted = append(emitted, ev)
			}
		}
		expired = len(passes)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.feed.Publish(ctx, emitted...)
	if expired > 0 {
		slog.Info("passes expired", "action", "pass_expire", "count", expired)
	}
	return expired, nil
}
