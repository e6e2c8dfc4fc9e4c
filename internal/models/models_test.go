package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPairKeyIsDirectionFree(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, PairKey(a, b), PairKey(b, a))
	assert.NotEqual(t, PairKey(a, b), PairKey(a, uuid.New()))
}

func TestConnectionOther(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	c := Connection{UserA: a, UserB: b}
	assert.Equal(t, b, c.Other(a))
	assert.Equal(t, a, c.Other(b))
	assert.True(t, c.Involves(a))
	assert.False(t, c.Involves(uuid.New()))
}

func TestPassKindManual(t *testing.T) {
	assert.True(t, PassMeet.Manual())
	assert.True(t, PassCall.Manual())
	assert.True(t, PassChat.Manual())
	assert.False(t, PassGPSProximity.Manual())
	assert.False(t, PassKind("wave").Manual())
}
