package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RatingService runs the double-blind exchange: a rating stays hidden
// until the counterpart rates the same pass, then both reveal together and
// each ratee's score absorbs the newly visible rating.
type RatingService struct {
	db    *gorm.DB
	clock clock.Clock
	feed  *events.Feed
}

func NewRatingService(db *gorm.DB, clk clock.Clock, feed *events.Feed) *RatingService {
	return &RatingService{db: db, clock: clk, feed: feed}
}

func (s *RatingService) SubmitRating(ctx context.Context, passID, rater, ratee uuid.UUID, score int) (*models.Rating, error) {
	if score < models.MinScore || score > models.MaxScore {
		return nil, ErrInvalidScore
	}

	var rating models.Rating
	var emitted []models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The pass row lock serializes both directions of the exchange.
		var pass models.InteractionPass
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&pass, "id = ?", passID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidPass
		}
		if err != nil {
			return storeErr("load pass", err)
		}
		if rater == ratee || !pass.Involves(rater) || !pass.Involves(ratee) {
			return ErrInvalidPass
		}

		now := s.clock.Now()
		if pass.Status == models.PassExpired || !now.Before(pass.ExpiresAt) {
			return ErrInvalidPass
		}
		connected, err := isConnected(tx, rater, ratee)
		if err != nil {
			return err
		}
		if !connected {
			return ErrInvalidPass
		}

		var existing int64
		if err := tx.Model(&models.Rating{}).
			Where("pass_id = ? AND rater_id = ?", pass.ID, rater).
			Count(&existing).Error; err != nil {
			return storeErr("check rating", err)
		}
		if existing > 0 {
			return ErrDuplicateRating
		}

		rating = models.Rating{
			PassID:    pass.ID,
			RaterID:   rater,
			RateeID:   ratee,
			Score:     score,
			CreatedAt: now,
		}
		if err := tx.Create(&rating).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateRating
			}
			return storeErr("create rating", err)
		}

		var pair []models.Rating
		if err := tx.Where("pass_id = ?", pass.ID).Find(&pair).Error; err != nil {
			return storeErr("load pass ratings", err)
		}
		if len(pair) < 2 {
			return nil
		}

		evs, err := s.reveal(tx, pass.ID, pair)
		if err != nil {
			return err
		}
		emitted = evs
		rating.Revealed = true
		rating.RevealedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.feed.Publish(ctx, emitted...)
	slog.Info("rating submitted", "action", "rating_submit", "user_id", rater.String(),
		"pass_id", passID.String(), "revealed", rating.Revealed)
	return &rating, nil
}

// reveal flips both ratings of a pass and folds each into its ratee's
// score. The flip must touch exactly the two hidden rows; anything else
// means another writer got there first and the transaction is abandoned.
// Ratee rows are updated in lockOrder so a reveal never waits on a user
// row while holding the other one out of order.
func (s *RatingService) reveal(tx *gorm.DB, passID uuid.UUID, pair []models.Rating) ([]models.Event, error) {
	now := s.clock.Now()
	result := tx.Model(&models.Rating{}).
		Where("pass_id = ? AND revealed = ?", passID, false).
		Updates(map[string]interface{}{"revealed": true, "revealed_at": now})
	if result.Error != nil {
		return nil, storeErr("reveal ratings", result.Error)
	}
	if result.RowsAffected != 2 {
		return nil, fmt.Errorf("reveal of pass %s touched %d ratings, want 2", passID, result.RowsAffected)
	}

	slices.SortFunc(pair, func(x, y models.Rating) int { return lockOrder(x.RateeID, y.RateeID) })

	emitted := make([]models.Event, 0, len(pair))
	for _, r := range pair {
		if err := applyToScore(tx, r.RateeID, r.Score); err != nil {
			return nil, err
		}
		ev, err := s.feed.Record(tx, models.EventRatingRevealed, r.RateeID, events.RatingRevealedPayload{
			PassID:   passID,
			RatingID: r.ID,
			RaterID:  r.RaterID,
			Score:    r.Score,
		})
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, ev)
	}
	return emitted, nil
}

// applyToScore adds one revealed rating to a user's running mean in a
// single statement; every right-hand side reads the pre-update row.
func applyToScore(tx *gorm.DB, userID uuid.UUID, score int) error {
	err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"rating_sum":   gorm.Expr("rating_sum + ?", score),
		"rating_count": gorm.Expr("rating_count + 1"),
		"score":        gorm.Expr("(rating_sum + ?) * 1.0 / (rating_count + 1)", score),
	}).Error
	if err != nil {
		return storeErr("aggregate score", err)
	}
	return nil
}

// RatingsForPass returns what viewer may see of a pass's ratings: their
// own, plus the counterpart's once revealed.
func (s *RatingService) RatingsForPass(ctx context.Context, passID, viewer uuid.UUID) ([]models.Rating, error) {
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

	var ratings []models.Rating
	err = s.db.WithContext(ctx).
		Where("pass_id = ? AND (rater_id = ? OR revealed = ?)", passID, viewer, true).
		Order("created_at ASC").
		Find(&ratings).Error
	if err != nil {
		return nil, storeErr("load ratings", err)
	}
	return ratings, nil
}

// RevealedRatingsFor lists revealed ratings the user has received, newest first.
func (s *RatingService) RevealedRatingsFor(ctx context.Context, userID uuid.UUID, limit int) ([]models.Rating, error) {
	limit = clampLimit(limit, 50, 200)
	var ratings []models.Rating
	err := s.db.WithContext(ctx).
		Where("ratee_id = ? AND revealed = ?", userID, true).
		Order("revealed_at DESC").
		Limit(limit).
		Find(&ratings).Error
	if err != nil {
		return nil, storeErr("load received ratings", err)
	}
	return ratings, nil
}
