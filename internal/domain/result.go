package domain

import "time"

// MatchResult is what a finished two-player session hands to the ResultSink.
type MatchResult struct {
	SessionID string
	Origin    Origin
	Player1   PlayerResult
	Player2   PlayerResult
	ProblemID string
	Winner    *PlayerID
	StartedAt time.Time
	EndedAt   time.Time
	EndReason EndReason
}

type PlayerResult struct {
	PlayerID    PlayerID
	DisplayName string
	Score       int
	Code        string
	SubmittedAt *time.Time
}

// NewMatchResult builds the result record of a finished session. It returns
// false when the session is not finished or lacks a second player.
func NewMatchResult(s *Session) (MatchResult, bool) {
	if s.Status != StatusFinished || !s.IsFull() || s.StartedAt == nil || s.EndedAt == nil {
		return MatchResult{}, false
	}
	return MatchResult{
		SessionID: s.ID,
		Origin:    s.Origin,
		Player1:   playerResult(s.Player1),
		Player2:   playerResult(s.Player2),
		ProblemID: s.Problem.ID,
		Winner:    s.Winner,
		StartedAt: *s.StartedAt,
		EndedAt:   *s.EndedAt,
		EndReason: s.EndReason,
	}, true
}

func playerResult(sl *Slot) PlayerResult {
	pr := PlayerResult{
		PlayerID:    sl.PlayerID,
		DisplayName: sl.DisplayName,
		Code:        sl.Code,
		SubmittedAt: sl.SubmittedAt,
	}
	if sl.Score != nil {
		pr.Score = *sl.Score
	}
	return pr
}

// IsWinner reports whether player won the match.
func (r MatchResult) IsWinner(player PlayerID) bool {
	return r.Winner != nil && *r.Winner == player
}

// Settlement is what one finished match changed for one player.
type Settlement struct {
	PlayerID     PlayerID `json:"playerId"`
	XPGained     int      `json:"xpGained"`
	RatingBefore int      `json:"ratingBefore"`
	RatingAfter  int      `json:"ratingAfter"`
	LevelBefore  int      `json:"levelBefore"`
	LevelAfter   int      `json:"levelAfter"`
}

func (s Settlement) LeveledUp() bool {
	return s.LevelAfter > s.LevelBefore
}

// MatchSummary is one row of a player's match history, seen from that
// player's side.
type MatchSummary struct {
	SessionID     string    `json:"sessionId"`
	MatchType     Origin    `json:"matchType"`
	ProblemID     string    `json:"problemId"`
	OpponentID    PlayerID  `json:"opponentId"`
	OpponentName  string    `json:"opponentName"`
	Score         int       `json:"score"`
	OpponentScore int       `json:"opponentScore"`
	Won           bool      `json:"won"`
	Draw          bool      `json:"draw"`
	XPGained      int       `json:"xpGained"`
	RatingChange  int       `json:"ratingChange"`
	EndReason     EndReason `json:"endReason"`
	EndedAt       time.Time `json:"endedAt"`
}
