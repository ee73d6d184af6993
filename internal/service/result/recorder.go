package result

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

// ApplyFunc folds a finished match into both players' stats. It receives the
// stats as stored before the match and returns what changed for each.
type ApplyFunc func(p1, p2 *domain.PlayerStats) [2]domain.Settlement

// Store persists a match together with the stats it changes, atomically.
// Implementations lock both players' rows, create rows for unknown players,
// call apply once and skip a match that was already stored.
type Store interface {
	SaveMatch(ctx context.Context, r domain.MatchResult, apply ApplyFunc) error
}

// Recorder is the ResultSink that turns finished matches into XP, levels,
// win rates and ratings.
type Recorder struct {
	store Store
	log   *zap.Logger
}

func NewRecorder(store Store, log *zap.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

func (r *Recorder) RecordMatch(ctx context.Context, res domain.MatchResult) error {
	var settled [2]domain.Settlement
	err := r.store.SaveMatch(ctx, res, func(p1, p2 *domain.PlayerStats) [2]domain.Settlement {
		settled = Settle(res, p1, p2)
		return settled
	})
	if err != nil {
		return fmt.Errorf("record match %s: %w", res.SessionID, err)
	}

	for _, s := range settled {
		if s.LeveledUp() {
			r.log.Info("[RESULT] Player leveled up",
				zap.String("player_id", string(s.PlayerID)),
				zap.Int("level", s.LevelAfter))
		}
	}
	r.log.Info("[RESULT] Match recorded",
		zap.String("session_id", res.SessionID),
		zap.String("reason", string(res.EndReason)),
		zap.Int("xp_player1", settled[0].XPGained),
		zap.Int("xp_player2", settled[1].XPGained))
	return nil
}

// Settle applies the match to both stats records in place.
func Settle(res domain.MatchResult, p1, p2 *domain.PlayerStats) [2]domain.Settlement {
	before1, before2 := *p1, *p2
	if before1.Rating == 0 {
		before1.Rating = domain.DefaultRating
	}
	if before2.Rating == 0 {
		before2.Rating = domain.DefaultRating
	}

	score1 := domain.EloScore(res.Winner, p1.PlayerID)
	p1.Rating = domain.CalculateElo(before1.Rating, before2.Rating, score1)
	p2.Rating = domain.CalculateElo(before2.Rating, before1.Rating, 1-score1)

	xp1 := p1.Apply(res.IsWinner(p1.PlayerID), res.Player1.Score)
	xp2 := p2.Apply(res.IsWinner(p2.PlayerID), res.Player2.Score)

	return [2]domain.Settlement{
		settlement(before1, *p1, xp1),
		settlement(before2, *p2, xp2),
	}
}

func settlement(before, after domain.PlayerStats, xp int) domain.Settlement {
	return domain.Settlement{
		PlayerID:     after.PlayerID,
		XPGained:     xp,
		RatingBefore: before.Rating,
		RatingAfter:  after.Rating,
		LevelBefore:  before.Level,
		LevelAfter:   after.Level,
	}
}
