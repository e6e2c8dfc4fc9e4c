package services

import (
	"slices"
	"testing"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestLockOrderMatchesDatabaseOrder(t *testing.T) {
	h := newHarness(t)
	var ids []uuid.UUID
	for _, name := range names("member", 12) {
		ids = append(ids, h.user(t, name).ID)
	}

	var stored []models.User
	require.NoError(t, h.db.Order("id").Find(&stored).Error)
	want := make([]uuid.UUID, len(stored))
	for i, u := range stored {
		want[i] = u.ID
	}

	slices.SortFunc(ids, lockOrder)
	assert.Equal(t, want, ids)
}

func TestLockPair(t *testing.T) {
	h := newHarness(t)
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	err := h.db.Transaction(func(tx *gorm.DB) error {
		users, err := lockPair(tx, bob.ID, alice.ID)
		if err != nil {
			return err
		}
		assert.Len(t, users, 2)
		assert.Equal(t, "alice", users[alice.ID].Username)
		return nil
	})
	require.NoError(t, err)

	err = h.db.Transaction(func(tx *gorm.DB) error {
		_, err := lockPair(tx, alice.ID, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}
