package domain

import "time"

// Slot is one player's seat in a Session together with the state of the
// current round.
type Slot struct {
	PlayerID    PlayerID
	DisplayName string
	Conn        ConnRef
	Ready       bool
	Code        string
	Submitted   bool
	Score       *int
	SubmittedAt *time.Time
}

func NewSlot(playerID PlayerID, displayName string, conn ConnRef) *Slot {
	return &Slot{PlayerID: playerID, DisplayName: displayName, Conn: conn}
}

func (sl *Slot) resetRound() {
	sl.Ready = false
	sl.Code = ""
	sl.Submitted = false
	sl.Score = nil
	sl.SubmittedAt = nil
}

// Session is one 1v1 contest. Player1 is the host in room mode. Player2 is nil
// while a room waits for a guest.
//
// Session carries no lock; callers serialize access per session.
type Session struct {
	ID        string
	Origin    Origin
	RoomCode  string
	Settings  RoomSettings
	Player1   *Slot
	Player2   *Slot
	Problem   Problem
	Status    Status
	TimeLimit time.Duration
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Winner    *PlayerID
	EndReason EndReason

	// Round increases on every activation so that delayed tasks armed for an
	// earlier round can tell they are stale.
	Round int
}

func NewSession(id string, origin Origin, host *Slot, problem Problem, timeLimit time.Duration, now time.Time) *Session {
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	return &Session{
		ID:        id,
		Origin:    origin,
		Player1:   host,
		Problem:   problem,
		Status:    StatusWaiting,
		TimeLimit: timeLimit,
		CreatedAt: now,
	}
}

func (s *Session) IsFull() bool {
	return s.Player1 != nil && s.Player2 != nil
}

func (s *Session) Slot(player PlayerID) *Slot {
	if s.Player1 != nil && s.Player1.PlayerID == player {
		return s.Player1
	}
	if s.Player2 != nil && s.Player2.PlayerID == player {
		return s.Player2
	}
	return nil
}

func (s *Session) Opponent(player PlayerID) *Slot {
	if s.Player1 != nil && s.Player1.PlayerID == player {
		return s.Player2
	}
	if s.Player2 != nil && s.Player2.PlayerID == player {
		return s.Player1
	}
	return nil
}

func (s *Session) IsHost(player PlayerID) bool {
	return s.Player1 != nil && s.Player1.PlayerID == player
}

// Players returns the ids of the occupied slots, host first.
func (s *Session) Players() []PlayerID {
	ids := make([]PlayerID, 0, 2)
	if s.Player1 != nil {
		ids = append(ids, s.Player1.PlayerID)
	}
	if s.Player2 != nil {
		ids = append(ids, s.Player2.PlayerID)
	}
	return ids
}

// Seat fills the second slot and moves a waiting session to Ready.
func (s *Session) Seat(guest *Slot) error {
	if s.Player1 != nil && s.Player1.PlayerID == guest.PlayerID {
		return ErrAlreadyHost
	}
	if s.IsFull() {
		return ErrRoomFull
	}
	if s.Status != StatusWaiting {
		return ErrRoomNotJoinable
	}
	s.Player2 = guest
	s.Status = StatusReady
	return nil
}

// Unseat removes player from the session. A departing host hands the room to
// the guest. A Ready session falls back to Waiting; Active and Finished are
// left for the round to settle. It reports whether the session is now empty.
func (s *Session) Unseat(player PlayerID) (empty bool) {
	switch {
	case s.Player2 != nil && s.Player2.PlayerID == player:
		s.Player2 = nil
	case s.Player1 != nil && s.Player1.PlayerID == player:
		s.Player1 = s.Player2
		s.Player2 = nil
	default:
		return s.Player1 == nil
	}
	if s.Player1 != nil {
		s.Player1.Ready = false
	}
	if s.Status == StatusReady {
		s.Status = StatusWaiting
	}
	return s.Player1 == nil
}

// SetReady records a ready signal and reports whether both players are ready.
func (s *Session) SetReady(player PlayerID, ready bool) (bool, error) {
	if s.Status != StatusReady {
		return false, ErrInvalidSessionState
	}
	slot := s.Slot(player)
	if slot == nil {
		return false, ErrNotParticipant
	}
	slot.Ready = ready
	return s.IsFull() && s.Player1.Ready && s.Player2.Ready, nil
}

// Activate starts a round. Round state of both slots is cleared.
func (s *Session) Activate(now time.Time) error {
	if s.Status != StatusReady {
		return ErrInvalidSessionState
	}
	if !s.IsFull() {
		return ErrInsufficientPlayers
	}
	s.Player1.resetRound()
	s.Player2.resetRound()
	s.Status = StatusActive
	s.StartedAt = &now
	s.EndedAt = nil
	s.Winner = nil
	s.EndReason = ""
	s.Round++
	return nil
}

// Submit stores code for player. The latest code counts; the submission
// timestamp is frozen at the first submission of the round. It reports
// whether both players have now submitted.
func (s *Session) Submit(player PlayerID, code string, now time.Time) (bool, error) {
	if s.Status != StatusActive {
		return false, ErrInvalidSessionState
	}
	slot := s.Slot(player)
	if slot == nil {
		return false, ErrNotParticipant
	}
	slot.Code = code
	if !slot.Submitted {
		slot.Submitted = true
		slot.SubmittedAt = &now
	}
	return s.Player1.Submitted && s.Player2 != nil && s.Player2.Submitted, nil
}

// Finish applies a resolved outcome. It only succeeds once per round.
func (s *Session) Finish(out Outcome, now time.Time) error {
	if s.Status != StatusActive {
		return ErrInvalidSessionState
	}
	for _, slot := range []*Slot{s.Player1, s.Player2} {
		if slot == nil {
			continue
		}
		score := out.Scores[slot.PlayerID]
		slot.Score = &score
	}
	s.Winner = out.Winner
	s.EndReason = out.Reason
	s.EndedAt = &now
	s.Status = StatusFinished
	return nil
}

// Recycle prepares a finished room session for another round.
func (s *Session) Recycle() error {
	if s.Status != StatusFinished {
		return ErrInvalidSessionState
	}
	for _, slot := range []*Slot{s.Player1, s.Player2} {
		if slot != nil {
			slot.resetRound()
		}
	}
	s.StartedAt = nil
	s.EndedAt = nil
	s.Winner = nil
	s.EndReason = ""
	if s.IsFull() {
		s.Status = StatusReady
	} else {
		s.Status = StatusWaiting
	}
	return nil
}

// ChangeProblem swaps the problem and clears both ready flags.
func (s *Session) ChangeProblem(p Problem) error {
	if s.Status == StatusActive {
		return ErrInvalidSessionState
	}
	s.Problem = p
	for _, slot := range []*Slot{s.Player1, s.Player2} {
		if slot != nil {
			slot.Ready = false
		}
	}
	return nil
}

// Deadline is the wall-clock end of the running round.
func (s *Session) Deadline() time.Time {
	if s.StartedAt == nil {
		return time.Time{}
	}
	return s.StartedAt.Add(s.TimeLimit)
}
