package domain

import (
	"errors"
	"time"
)

// PlayerID is the opaque identity the auth layer attaches to a connection.
type PlayerID string

// ConnRef identifies one transport connection of a player. It is only used to
// address notifications and to ignore disconnects from stale connections.
type ConnRef string

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// EndReason records how a Session reached Finished.
type EndReason string

const (
	EndBothSubmitted        EndReason = "both_submitted"
	EndTimeout              EndReason = "timeout"
	EndOpponentDisconnected EndReason = "opponent_disconnected"
	EndAdminEnded           EndReason = "admin_ended"
)

// Origin tells how a Session was admitted.
type Origin string

const (
	OriginQueue Origin = "quick"
	OriginRoom  Origin = "room"
)

const (
	DefaultTimeLimit   = 10 * time.Minute
	MinTimeLimit       = 1 * time.Minute
	MaxTimeLimit       = 60 * time.Minute
	DefaultRecycleWait = 5 * time.Second
)

// basic error that can occur
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrNotInQueueOrSession   Error = "not in queue or session"
	ErrAlreadyInSession      Error = "already in a session"
	ErrRoomNotFound          Error = "room not found"
	ErrRoomFull              Error = "room is full"
	ErrRoomNotJoinable       Error = "room is not available for joining"
	ErrAlreadyHost           Error = "you are already the host of this room"
	ErrNotHost               Error = "only the host can do that"
	ErrInsufficientPlayers   Error = "need two players to start"
	ErrInvalidSessionState   Error = "operation not valid in the current match state"
	ErrEvaluationUnavailable Error = "evaluation unavailable"
	ErrSessionNotFound       Error = "session not found"
	ErrProblemNotFound       Error = "problem not found"
	ErrNotParticipant        Error = "not a participant of this session"
)

// Code returns the wire name of a domain error, or "internal" for anything else.
func Code(err error) string {
	var de Error
	if !errors.As(err, &de) {
		return "internal"
	}
	switch de {
	case ErrNotInQueueOrSession:
		return "NotInQueueOrSession"
	case ErrAlreadyInSession:
		return "AlreadyInSession"
	case ErrRoomNotFound:
		return "RoomNotFound"
	case ErrRoomFull:
		return "RoomFull"
	case ErrRoomNotJoinable:
		return "RoomNotJoinable"
	case ErrAlreadyHost:
		return "AlreadyHost"
	case ErrNotHost:
		return "NotHost"
	case ErrInsufficientPlayers:
		return "InsufficientPlayers"
	case ErrInvalidSessionState:
		return "InvalidSessionState"
	case ErrEvaluationUnavailable:
		return "EvaluationUnavailable"
	case ErrSessionNotFound:
		return "SessionNotFound"
	case ErrProblemNotFound:
		return "ProblemNotFound"
	case ErrNotParticipant:
		return "NotParticipant"
	}
	return "internal"
}
