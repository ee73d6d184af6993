package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXPGained(t *testing.T) {
	assert.Equal(t, 25, XPGained(false, 0))
	assert.Equal(t, 59, XPGained(true, 95))
	assert.Equal(t, 35, XPGained(false, 150))
}

func TestPlayerStatsApply(t *testing.T) {
	ps := PlayerStats{Level: 1}
	for i := 0; i < 4; i++ {
		ps.Apply(true, 100)
	}
	assert.Equal(t, 240, ps.XP)
	assert.Equal(t, 2, ps.Level)
	assert.Equal(t, 100, ps.WinRate)

	ps.Apply(false, 0)
	ps.Apply(false, 0)
	ps.Apply(false, 0)
	assert.Equal(t, 7, ps.TotalMatches)
	assert.Equal(t, 57, ps.WinRate)
}

func TestCalculateElo(t *testing.T) {
	assert.Equal(t, 1216, CalculateElo(1200, 1200, 1.0))
	assert.Equal(t, 1184, CalculateElo(1200, 1200, 0.0))
	assert.Equal(t, 1200, CalculateElo(1200, 1200, 0.5))

	w := PlayerID("a")
	assert.Equal(t, 1.0, EloScore(&w, "a"))
	assert.Equal(t, 0.0, EloScore(&w, "b"))
	assert.Equal(t, 0.5, EloScore(nil, "b"))
}
