package match

import (
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

// admission is what differs between queue-paired and room sessions: how a
// finished round is wrapped up and what happens when a player walks away
// before or after a round. The state machine itself is shared.
type admission interface {
	origin() domain.Origin
	// settle runs once after a round reached Finished. o.mu and e.mu are held.
	settle(o *Orchestrator, e *entry)
	// depart removes player from a session that is not running a round.
	// o.mu and e.mu are held.
	depart(o *Orchestrator, e *entry, player domain.PlayerID)
}

type queueAdmission struct{}

func (queueAdmission) origin() domain.Origin { return domain.OriginQueue }

// Queue sessions live for a single round.
func (queueAdmission) settle(o *Orchestrator, e *entry) {
	o.disposeLocked(e)
	o.log.Info("[MATCH] Disposed queue session", zap.String("session_id", e.s.ID))
}

func (queueAdmission) depart(o *Orchestrator, e *entry, player domain.PlayerID) {
	if e.s.Status == domain.StatusFinished {
		o.unbindLocked(player, e.s.ID)
		o.notifier.Leave(e.topic(), player)
		return
	}

	// A paired session that never started cannot continue with one player.
	o.notifier.Emit(e.topic(), domain.EventMatchCancelled, map[string]any{
		"sessionId": e.s.ID,
		"playerId":  player,
		"reason":    "opponent_left",
	})
	o.disposeLocked(e)
	o.log.Info("[QUEUE] Cancelled paired session before start",
		zap.String("session_id", e.s.ID),
		zap.String("player_id", string(player)))
}

type roomAdmission struct{}

func (roomAdmission) origin() domain.Origin { return domain.OriginRoom }

// Rooms outlive their rounds. Players who left mid-round are unseated now and
// the room goes back to Ready after the recycle delay.
func (roomAdmission) settle(o *Orchestrator, e *entry) {
	for p := range e.departed {
		if o.unseatLocked(e, p) {
			return
		}
	}

	round := e.s.Round
	e.stopTimer()
	e.timer = o.clock.AfterFunc(o.cfg.RecycleDelay, func() {
		o.recycle(e, round)
	})
}

func (roomAdmission) depart(o *Orchestrator, e *entry, player domain.PlayerID) {
	code := e.s.RoomCode
	o.unseatLocked(e, player)
	o.notifier.Emit(domain.PlayerTopic(player), domain.EventRoomLeft, map[string]any{"roomCode": code})
}

// unseatLocked removes player from a room and reports whether the room was
// destroyed because nobody is left. o.mu and e.mu are held.
func (o *Orchestrator) unseatLocked(e *entry, player domain.PlayerID) bool {
	wasHost := e.s.IsHost(player)
	empty := e.s.Unseat(player)
	delete(e.departed, player)
	e.touched = o.clock.Now()
	o.unbindLocked(player, e.s.ID)
	o.notifier.Leave(e.topic(), player)

	if empty {
		o.notifyDeletedLocked(e)
		o.disposeLocked(e)
		o.log.Info("[ROOM] Room destroyed, last player left",
			zap.String("room_code", e.s.RoomCode),
			zap.String("player_id", string(player)))
		return true
	}

	payload := map[string]any{
		"room":       e.s.View(),
		"leftPlayer": player,
	}
	if wasHost {
		payload["newHost"] = e.s.Player1.PlayerID
	}
	o.notifier.Emit(e.topic(), domain.EventRoomUpdated, payload)
	o.log.Info("[ROOM] Player left room",
		zap.String("room_code", e.s.RoomCode),
		zap.String("player_id", string(player)),
		zap.Bool("host_promoted", wasHost))
	return false
}

// recycle moves a finished room back to Ready once the delay has passed.
func (o *Orchestrator) recycle(e *entry, round int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.s.Status != domain.StatusFinished || e.s.Round != round {
		return
	}
	e.timer = nil
	if err := e.s.Recycle(); err != nil {
		return
	}
	e.touched = o.clock.Now()
	o.notifier.Emit(e.topic(), domain.EventRoomReset, e.s.View())
	o.log.Info("[ROOM] Room reset for next round",
		zap.String("room_code", e.s.RoomCode),
		zap.String("status", string(e.s.Status)))
}
