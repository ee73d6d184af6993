package match

import (
	"github.com/elliotchance/pie/v2"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

// Enqueue puts the player in the matchmaking queue, replacing any earlier
// entry, and pairs them with the longest waiting other player if there is one.
func (o *Orchestrator) Enqueue(p Player) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.releaseLocked(p.ID); err != nil {
		return err
	}

	o.queue = append(o.queue, queueEntry{player: p, enqueuedAt: o.clock.Now()})
	o.notifier.Emit(domain.PlayerTopic(p.ID), domain.EventQueueJoined, map[string]any{
		"position": len(o.queue),
	})
	o.log.Info("[QUEUE] Player joined queue",
		zap.String("player_id", string(p.ID)),
		zap.Int("queue_size", len(o.queue)))

	o.pairLocked(p.ID)
	o.metrics.QueueSize(len(o.queue))
	return nil
}

// Dequeue drops the player's queue entry. Absent players are not an error.
func (o *Orchestrator) Dequeue(player domain.PlayerID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := o.removeFromQueueLocked(player)
	o.notifier.Emit(domain.PlayerTopic(player), domain.EventQueueLeft, map[string]any{
		"removed": removed,
	})
	if removed {
		o.log.Info("[QUEUE] Player left queue", zap.String("player_id", string(player)))
	}
	o.metrics.QueueSize(len(o.queue))
}

func (o *Orchestrator) queueIndexLocked(player domain.PlayerID) int {
	return pie.FindFirstUsing(o.queue, func(qe queueEntry) bool {
		return qe.player.ID == player
	})
}

func (o *Orchestrator) removeFromQueueLocked(player domain.PlayerID) bool {
	i := o.queueIndexLocked(player)
	if i < 0 {
		return false
	}
	o.queue = append(o.queue[:i], o.queue[i+1:]...)
	return true
}

// pairLocked matches newcomer with the earliest queued other player and
// starts a Ready session for both. Caller holds o.mu.
func (o *Orchestrator) pairLocked(newcomer domain.PlayerID) {
	if len(o.queue) < 2 {
		return
	}
	oi := pie.FindFirstUsing(o.queue, func(qe queueEntry) bool {
		return qe.player.ID != newcomer
	})
	ni := o.queueIndexLocked(newcomer)
	if oi < 0 || ni < 0 {
		return
	}

	problem, err := o.problems.Random("", "")
	if err != nil {
		o.log.Error("[QUEUE] No problem available, players stay queued", zap.Error(err))
		return
	}

	first, second := o.queue[oi].player, o.queue[ni].player
	o.removeFromQueueLocked(first.ID)
	o.removeFromQueueLocked(second.ID)

	now := o.clock.Now()
	s := domain.NewSession(o.newID(), domain.OriginQueue,
		domain.NewSlot(first.ID, first.Name, first.Conn), problem, o.cfg.TimeLimit, now)
	if err := s.Seat(domain.NewSlot(second.ID, second.Name, second.Conn)); err != nil {
		o.log.Error("[QUEUE] Could not seat paired player", zap.Error(err))
		return
	}

	e := &entry{s: s, adm: queueAdmission{}, touched: now}
	e.mu.Lock()
	defer e.mu.Unlock()

	o.addLocked(e)
	for _, pair := range [][2]Player{{first, second}, {second, first}} {
		me, opp := pair[0], pair[1]
		o.notifier.Join(e.topic(), me.ID)
		o.notifier.Emit(domain.PlayerTopic(me.ID), domain.EventMatchFound, map[string]any{
			"sessionId": s.ID,
			"opponent": map[string]any{
				"playerId":    opp.ID,
				"displayName": opp.Name,
			},
			"problem":     s.Problem,
			"timeLimit":   int(s.TimeLimit.Seconds()),
			"autoStartIn": int(o.cfg.QueueAutoStart.Seconds()),
		})
	}

	if o.cfg.QueueAutoStart > 0 {
		e.timer = o.clock.AfterFunc(o.cfg.QueueAutoStart, func() {
			o.autoStart(e)
		})
	}

	o.log.Info("[QUEUE] Match found",
		zap.String("session_id", s.ID),
		zap.String("player1", string(first.ID)),
		zap.String("player2", string(second.ID)),
		zap.String("problem", problem.ID))
}

// autoStart begins a paired queue session whose players never both signalled
// ready.
func (o *Orchestrator) autoStart(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.s.Status != domain.StatusReady || e.s.Round != 0 {
		return
	}
	e.timer = nil
	if err := o.activateLocked(e); err != nil {
		o.log.Warn("[QUEUE] Auto start failed", zap.String("session_id", e.s.ID), zap.Error(err))
	}
}
