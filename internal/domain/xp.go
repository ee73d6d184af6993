package domain

const (
	BaseXP     = 25
	WinBonusXP = 25
	XPPerLevel = 200
	ScorePerXP = 10
	MaxScore   = 100
	MinScore   = 0
)

// PlayerStats is the progression record kept per player.
type PlayerStats struct {
	PlayerID     PlayerID `json:"playerId"`
	DisplayName  string   `json:"displayName"`
	XP           int      `json:"xp"`
	Level        int      `json:"level"`
	Wins         int      `json:"wins"`
	TotalMatches int      `json:"totalMatches"`
	WinRate      int      `json:"winRate"`
	Rating       int      `json:"rating"`
}

// XPGained is the experience a player earns from one match.
func XPGained(won bool, score int) int {
	xp := BaseXP
	if won {
		xp += WinBonusXP
	}
	return xp + ClampScore(score)/ScorePerXP
}

// LevelFor returns the level reached with xp. Levels never go down, so the
// caller keeps the max of the stored and computed level.
func LevelFor(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// Apply folds one match into the stats and returns the xp gained.
func (ps *PlayerStats) Apply(won bool, score int) int {
	gained := XPGained(won, score)
	ps.TotalMatches++
	if won {
		ps.Wins++
	}
	ps.XP += gained
	if lvl := LevelFor(ps.XP); lvl > ps.Level {
		ps.Level = lvl
	}
	ps.WinRate = (ps.Wins*100 + ps.TotalMatches/2) / ps.TotalMatches
	return gained
}

func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
