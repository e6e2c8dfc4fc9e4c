package services

import (
	"bytes"
	"errors"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockPair loads both users with row locks taken in id order, so every
// pair-scoped transaction serializes on the same two rows without
// deadlocking against its mirror image.
func lockPair(tx *gorm.DB, a, b uuid.UUID) (map[uuid.UUID]*models.User, error) {
	var users []models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", []uuid.UUID{a, b}).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, storeErr("lock pair", err)
	}
	if len(users) != 2 {
		return nil, ErrUserNotFound
	}
	byID := make(map[uuid.UUID]*models.User, 2)
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	return byID, nil
}

// lockOrder compares user ids the way ORDER BY id sorts a uuid column.
// Any transaction that writes more than one user row visits them in this
// order.
func lockOrder(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

func blockExists(tx *gorm.DB, a, b uuid.UUID) (bool, error) {
	var n int64
	err := tx.Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	if err != nil {
		return false, storeErr("check block", err)
	}
	return n > 0, nil
}

// connectionFor returns the pair's connection row, or nil when none exists.
func connectionFor(tx *gorm.DB, a, b uuid.UUID) (*models.Connection, error) {
	var conn models.Connection
	err := tx.Where("pair_key = ?", models.PairKey(a, b)).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("load connection", err)
	}
	return &conn, nil
}

func isConnected(tx *gorm.DB, a, b uuid.UUID) (bool, error) {
	conn, err := connectionFor(tx, a, b)
	if err != nil {
		return false, err
	}
	return conn != nil && conn.Status == models.ConnectionAccepted, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
