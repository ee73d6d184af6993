package domain

import "time"

// SlotView is the client-facing shape of a Slot. Submitted code is never
// exposed to the opponent.
type SlotView struct {
	PlayerID    PlayerID   `json:"playerId"`
	DisplayName string     `json:"displayName"`
	IsHost      bool       `json:"isHost"`
	Ready       bool       `json:"isReady"`
	Submitted   bool       `json:"submitted"`
	Score       *int       `json:"score,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
}

// SessionView is a point-in-time snapshot of a Session.
type SessionView struct {
	SessionID string     `json:"sessionId"`
	Origin    Origin     `json:"matchType"`
	RoomCode  string     `json:"roomCode,omitempty"`
	Status    Status     `json:"status"`
	Players   []SlotView `json:"players"`
	Problem   Problem    `json:"problem"`
	TimeLimit int        `json:"timeLimit"`
	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Winner    *PlayerID  `json:"winner,omitempty"`
	EndReason EndReason  `json:"endReason,omitempty"`
	IsPrivate bool       `json:"isPrivate"`
}

// View copies the session into a SessionView.
func (s *Session) View() SessionView {
	v := SessionView{
		SessionID: s.ID,
		Origin:    s.Origin,
		RoomCode:  s.RoomCode,
		Status:    s.Status,
		Problem:   s.Problem,
		TimeLimit: int(s.TimeLimit / time.Second),
		CreatedAt: s.CreatedAt,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Winner:    s.Winner,
		EndReason: s.EndReason,
		IsPrivate: s.Settings.IsPrivate,
	}
	for _, sl := range []*Slot{s.Player1, s.Player2} {
		if sl == nil {
			continue
		}
		v.Players = append(v.Players, SlotView{
			PlayerID:    sl.PlayerID,
			DisplayName: sl.DisplayName,
			IsHost:      s.Origin == OriginRoom && s.IsHost(sl.PlayerID),
			Ready:       sl.Ready,
			Submitted:   sl.Submitted,
			Score:       sl.Score,
			SubmittedAt: sl.SubmittedAt,
		})
	}
	return v
}

// RoomSummary is the entry shown in public room listings.
type RoomSummary struct {
	Code       string    `json:"roomCode"`
	HostName   string    `json:"hostName"`
	Players    int       `json:"players"`
	Status     Status    `json:"status"`
	ProblemID  string    `json:"problemId"`
	Title      string    `json:"problemTitle"`
	Difficulty string    `json:"difficulty"`
	TimeLimit  int       `json:"timeLimit"`
	CreatedAt  time.Time `json:"createdAt"`
}
