package domain

import "time"

// Entry is one player's scored contribution to a round.
type Entry struct {
	Player      PlayerID
	Score       int
	SubmittedAt *time.Time
}

// Outcome is the resolved result of a round.
type Outcome struct {
	Scores map[PlayerID]int
	Winner *PlayerID
	Reason EndReason
}

// ResolveWinner picks the winner of a round, or nil for a draw.
//
// Higher score wins. Equal scores, zero included, go to the earlier submission,
// and a submitter beats a player who never submitted. Neither submitting or
// identical timestamps is a draw.
func ResolveWinner(a, b Entry) *PlayerID {
	switch {
	case a.Score > b.Score:
		return &a.Player
	case b.Score > a.Score:
		return &b.Player
	}

	switch {
	case a.SubmittedAt != nil && b.SubmittedAt != nil:
		if a.SubmittedAt.Before(*b.SubmittedAt) {
			return &a.Player
		}
		if b.SubmittedAt.Before(*a.SubmittedAt) {
			return &b.Player
		}
		return nil
	case a.SubmittedAt != nil:
		return &a.Player
	case b.SubmittedAt != nil:
		return &b.Player
	}
	return nil
}

// Resolve builds the outcome of a round. When forfeit names a player that
// player loses regardless of scores.
func Resolve(a, b Entry, reason EndReason, forfeit *PlayerID) Outcome {
	out := Outcome{
		Scores: map[PlayerID]int{a.Player: a.Score, b.Player: b.Score},
		Reason: reason,
	}
	if forfeit != nil {
		switch *forfeit {
		case a.Player:
			out.Winner = &b.Player
			return out
		case b.Player:
			out.Winner = &a.Player
			return out
		}
	}
	out.Winner = ResolveWinner(a, b)
	return out
}
