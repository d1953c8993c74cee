package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpritePriorityLowerXWins(t *testing.T) {
	var p spritePriority
	p.clear()

	p.tryClaim(10, 2, 40)
	p.tryClaim(10, 5, 20) // lower X, later OAM index, should still win

	assert.Equal(t, 5, p.ownerOf(10))
}

func TestSpritePriorityTieBrokenByLowerOAMIndex(t *testing.T) {
	var p spritePriority
	p.clear()

	p.tryClaim(10, 7, 30)
	p.tryClaim(10, 3, 30) // same X, lower OAM index wins
	p.tryClaim(10, 9, 30) // same X, higher OAM index loses

	assert.Equal(t, 3, p.ownerOf(10))
}

func TestSpritePriorityFirstClaimStandsAgainstWorseLaterClaim(t *testing.T) {
	var p spritePriority
	p.clear()

	p.tryClaim(10, 1, 20)
	p.tryClaim(10, 8, 50) // higher X and higher index, must not overwrite

	assert.Equal(t, 1, p.ownerOf(10))
}

func TestSpritePriorityOutOfRangeIsNoop(t *testing.T) {
	var p spritePriority
	p.clear()

	p.tryClaim(-1, 0, 0)
	p.tryClaim(Width, 0, 0)

	assert.Equal(t, -1, p.ownerOf(-1))
	assert.Equal(t, -1, p.ownerOf(Width))
}

func TestSpritePriorityClearResetsOwnership(t *testing.T) {
	var p spritePriority
	p.clear()
	p.tryClaim(5, 1, 10)
	assert.Equal(t, 1, p.ownerOf(5))

	p.clear()
	assert.Equal(t, -1, p.ownerOf(5))
}
