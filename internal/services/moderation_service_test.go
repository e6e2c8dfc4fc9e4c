package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDisplayName(t *testing.T) {
	ms := NewModerationService()

	got, err := ms.CheckDisplayName("  Ada Lovelace  ")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got)

	rejected := map[string]string{
		"profanity":  "shit happens",
		"url":        "see https://example.com",
		"email":      "me@example.com",
		"phone":      "call 555-123-4567",
		"repetition": "heyyyyy",
		"too long":   strings.Repeat("a", 51),
	}
	for name, input := range rejected {
		t.Run(name, func(t *testing.T) {
			_, err := ms.CheckDisplayName(input)
			assert.ErrorIs(t, err, ErrContentRejected)
		})
	}
}

func TestFilterContentReasons(t *testing.T) {
	ms := NewModerationService()

	ok, reason := ms.FilterContent("")
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = ms.FilterContent("HELLO THERE WORLD")
	assert.False(t, ok)
	assert.Equal(t, "excessive_caps", reason)

	// Word boundaries keep innocent names like "Cassandra" acceptable.
	assert.False(t, ms.ContainsProfanity("Cassandra"))
	assert.True(t, ms.ContainsProfanity("what an ASS"))
}

func TestLongestRun(t *testing.T) {
	assert.Equal(t, 0, longestRun(""))
	assert.Equal(t, 2, longestRun("Aaron"))
	assert.Equal(t, 4, longestRun("wowWWW!"))
	assert.Equal(t, 4, longestRun("what????"))
	assert.Equal(t, 1, longestRun("1111"), "digits are not spam on their own")
}
