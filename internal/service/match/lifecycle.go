package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

type submission struct {
	player    domain.PlayerID
	code      string
	submitted bool
	at        *time.Time
}

// resolution is the frozen input of a round's winner computation, taken while
// the session lock is held so evaluation can run without it.
type resolution struct {
	round   int
	origin  domain.Origin
	reason  domain.EndReason
	forfeit *domain.PlayerID
	problem domain.Problem
	subs    [2]submission
}

// SetReady records a player's ready signal. The round starts once both players
// are ready.
func (o *Orchestrator) SetReady(player domain.PlayerID, ready bool) error {
	e, ok := o.lookup(player)
	if !ok {
		return domain.ErrNotInQueueOrSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.ErrNotInQueueOrSession
	}
	both, err := e.s.SetReady(player, ready)
	if err != nil {
		return err
	}
	e.touched = o.clock.Now()

	o.notifier.Emit(e.topic(), domain.EventPlayerReady, map[string]any{
		"playerId": player,
		"isReady":  ready,
		"players":  e.s.View().Players,
	})
	if !both {
		return nil
	}
	e.stopTimer()
	return o.activateLocked(e)
}

// activateLocked starts a round and arms its timeout. e.mu is held.
func (o *Orchestrator) activateLocked(e *entry) error {
	now := o.clock.Now()
	if err := e.s.Activate(now); err != nil {
		return err
	}
	e.touched = now
	e.departed = nil

	round := e.s.Round
	e.timer = o.clock.AfterFunc(e.s.TimeLimit, func() {
		o.expire(e, round, domain.EndTimeout)
	})

	o.metrics.MatchStarted(e.s.Origin)
	o.metrics.LiveSessions(int(o.live.Add(1)))

	o.notifier.Emit(e.topic(), domain.EventMatchStarted, map[string]any{
		"sessionId": e.s.ID,
		"problem":   e.s.Problem,
		"timeLimit": int(e.s.TimeLimit.Seconds()),
		"startedAt": now,
		"deadline":  e.s.Deadline(),
	})
	o.log.Info("[MATCH] Match started",
		zap.String("session_id", e.s.ID),
		zap.String("origin", string(e.s.Origin)),
		zap.Int("round", round))
	return nil
}

// SubmitCode stores the player's code for the running round. When both players
// have submitted the round is resolved before SubmitCode returns.
func (o *Orchestrator) SubmitCode(player domain.PlayerID, code string) error {
	e, ok := o.lookup(player)
	if !ok {
		return domain.ErrNotInQueueOrSession
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrNotInQueueOrSession
	}
	if e.resolving {
		e.mu.Unlock()
		return domain.ErrInvalidSessionState
	}
	now := o.clock.Now()
	both, err := e.s.Submit(player, code, now)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	slot := e.s.Slot(player)
	o.notifier.Emit(domain.PlayerTopic(player), domain.EventSubmissionReceived, map[string]any{
		"sessionId":   e.s.ID,
		"submittedAt": slot.SubmittedAt,
	})
	if opp := e.s.Opponent(player); opp != nil {
		o.notifier.Emit(domain.PlayerTopic(opp.PlayerID), domain.EventOpponentSubmitted, map[string]any{
			"sessionId": e.s.ID,
			"playerId":  player,
		})
	}
	o.log.Info("[MATCH] Code submitted",
		zap.String("session_id", e.s.ID),
		zap.String("player_id", string(player)),
		zap.Int("code_length", len(code)))

	if !both {
		e.mu.Unlock()
		return nil
	}
	r := o.beginResolveLocked(e, domain.EndBothSubmitted, nil)
	e.mu.Unlock()

	o.resolve(e, r)
	return nil
}

// Disconnect handles a transport-detected drop. conn must be the connection
// the player is bound with; drops of replaced connections are ignored. An
// empty conn matches any connection.
func (o *Orchestrator) Disconnect(player domain.PlayerID, conn domain.ConnRef) {
	o.mu.Lock()
	if i := o.queueIndexLocked(player); i >= 0 && sameConn(o.queue[i].player.Conn, conn) {
		o.removeFromQueueLocked(player)
		o.metrics.QueueSize(len(o.queue))
		o.log.Info("[QUEUE] Removed disconnected player", zap.String("player_id", string(player)))
	}

	e, ok := o.lookupLocked(player)
	if !ok {
		o.mu.Unlock()
		return
	}
	e.mu.Lock()
	if slot := e.s.Slot(player); slot != nil && !sameConn(slot.Conn, conn) {
		e.mu.Unlock()
		o.mu.Unlock()
		o.log.Info("[MATCH] Ignoring disconnect of a replaced connection",
			zap.String("player_id", string(player)),
			zap.String("conn", string(conn)))
		return
	}
	r := o.leaveLocked(e, player)
	e.mu.Unlock()
	o.mu.Unlock()

	if r != nil {
		o.resolve(e, r)
	}
}

// Reconnect points the player's slot at a new connection.
func (o *Orchestrator) Reconnect(player domain.PlayerID, conn domain.ConnRef) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if i := o.queueIndexLocked(player); i >= 0 {
		o.queue[i].player.Conn = conn
	}
	e, ok := o.lookupLocked(player)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	slot := e.s.Slot(player)
	if slot == nil || e.departed[player] {
		return false
	}
	slot.Conn = conn
	o.notifier.Join(e.topic(), player)
	return true
}

func sameConn(bound, conn domain.ConnRef) bool {
	return conn == "" || bound == conn
}

// leaveLocked takes player out of the session. A running round is forfeited
// and the returned resolution must be passed to resolve once all locks are
// released. o.mu and e.mu are held.
func (o *Orchestrator) leaveLocked(e *entry, player domain.PlayerID) *resolution {
	switch {
	case e.resolving:
		e.markDeparted(player)
		return nil
	case e.s.Status == domain.StatusActive:
		e.markDeparted(player)
		o.notifier.Emit(e.topic(), domain.EventOpponentDisconnected, map[string]any{
			"sessionId": e.s.ID,
			"playerId":  player,
		})
		o.log.Info("[MATCH] Player left running match",
			zap.String("session_id", e.s.ID),
			zap.String("player_id", string(player)))
		return o.beginResolveLocked(e, domain.EndOpponentDisconnected, &player)
	default:
		e.adm.depart(o, e, player)
		return nil
	}
}

func (e *entry) markDeparted(player domain.PlayerID) {
	if e.departed == nil {
		e.departed = make(map[domain.PlayerID]bool)
	}
	e.departed[player] = true
}

// EndMatch terminates the running round of a session.
func (o *Orchestrator) EndMatch(sessionID string, reason domain.EndReason) error {
	o.mu.Lock()
	e, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	if !o.expire(e, 0, reason) {
		return domain.ErrInvalidSessionState
	}
	return nil
}

// ForceEnd is the administrative EndMatch.
func (o *Orchestrator) ForceEnd(sessionID string) error {
	return o.EndMatch(sessionID, domain.EndAdminEnded)
}

// expire ends the round if it is still running. A nonzero round must match the
// session's current round. It reports whether this call ended the round.
func (o *Orchestrator) expire(e *entry, round int, reason domain.EndReason) bool {
	e.mu.Lock()
	if e.closed || e.resolving || e.s.Status != domain.StatusActive || (round != 0 && e.s.Round != round) {
		e.mu.Unlock()
		return false
	}
	r := o.beginResolveLocked(e, reason, nil)
	e.mu.Unlock()

	o.resolve(e, r)
	return true
}

// beginResolveLocked claims the round for resolution. Only one caller per
// round gets here because the resolving flag is checked under e.mu.
func (o *Orchestrator) beginResolveLocked(e *entry, reason domain.EndReason, forfeit *domain.PlayerID) *resolution {
	e.resolving = true
	e.stopTimer()

	r := &resolution{
		round:   e.s.Round,
		origin:  e.s.Origin,
		reason:  reason,
		forfeit: forfeit,
		problem: e.s.Problem,
	}
	for i, sl := range []*domain.Slot{e.s.Player1, e.s.Player2} {
		if sl == nil {
			continue
		}
		r.subs[i] = submission{
			player:    sl.PlayerID,
			code:      sl.Code,
			submitted: sl.Submitted,
			at:        sl.SubmittedAt,
		}
	}

	o.notifier.Emit(e.topic(), domain.EventMatchEvaluating, map[string]any{
		"sessionId": e.s.ID,
		"reason":    reason,
	})
	return r
}

// resolve evaluates the frozen submissions, finishes the round and hands the
// result to the sink. No lock may be held by the caller.
func (o *Orchestrator) resolve(e *entry, r *resolution) {
	scores := o.evaluateAll(r)

	e.mu.Lock()
	a := domain.Entry{Player: r.subs[0].player, Score: scores[0], SubmittedAt: r.subs[0].at}
	b := domain.Entry{Player: r.subs[1].player, Score: scores[1], SubmittedAt: r.subs[1].at}
	out := domain.Resolve(a, b, r.reason, r.forfeit)

	now := o.clock.Now()
	err := e.s.Finish(out, now)
	e.resolving = false
	if err != nil {
		e.mu.Unlock()
		o.log.Error("[MATCH] Could not finish round", zap.String("session_id", e.s.ID), zap.Error(err))
		return
	}
	e.touched = now
	o.metrics.LiveSessions(int(o.live.Add(-1)))

	o.notifier.Emit(e.topic(), domain.EventMatchEnded, endPayload(e.s))
	result, complete := domain.NewMatchResult(e.s)
	e.mu.Unlock()

	o.metrics.MatchFinished(r.origin, r.reason)
	winner := "draw"
	if out.Winner != nil {
		winner = string(*out.Winner)
	}
	o.log.Info("[MATCH] Match ended",
		zap.String("session_id", e.s.ID),
		zap.String("reason", string(r.reason)),
		zap.String("winner", winner),
		zap.Int("score1", scores[0]),
		zap.Int("score2", scores[1]))

	if complete {
		o.recordAsync(result)
	}
	o.settle(e, r.round)
}

func endPayload(s *domain.Session) map[string]any {
	return map[string]any{
		"sessionId": s.ID,
		"winner":    s.Winner,
		"isDraw":    s.Winner == nil,
		"endReason": s.EndReason,
		"session":   s.View(),
	}
}

// evaluateAll scores both submissions concurrently. A forfeiting player and a
// player who never submitted score 0 without an evaluator call.
func (o *Orchestrator) evaluateAll(r *resolution) [2]int {
	var scores [2]int

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.EvaluationTimeout)
	defer cancel()

	var g errgroup.Group
	for i, sub := range r.subs {
		if !sub.submitted || (r.forfeit != nil && *r.forfeit == sub.player) {
			continue
		}
		g.Go(func() error {
			scores[i] = o.evaluate(ctx, sub, r.problem)
			return nil
		})
	}
	_ = g.Wait()
	return scores
}

type scored struct {
	score int
	err   error
}

// evaluate calls the evaluator and gives up when ctx is done, whether or not
// the evaluator honours it. Failures score 0.
func (o *Orchestrator) evaluate(ctx context.Context, sub submission, problem domain.Problem) int {
	done := make(chan scored, 1)
	go func() {
		score, err := o.eval.Evaluate(ctx, sub.code, problem)
		done <- scored{score: score, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			err := res.err
			if !errors.Is(err, domain.ErrEvaluationUnavailable) {
				err = fmt.Errorf("%w: %v", domain.ErrEvaluationUnavailable, err)
			}
			o.log.Warn("[MATCH] Evaluation failed, scoring 0",
				zap.String("player_id", string(sub.player)),
				zap.Error(err))
			return 0
		}
		return domain.ClampScore(res.score)
	case <-ctx.Done():
		o.log.Warn("[MATCH] Evaluation timed out, scoring 0",
			zap.String("player_id", string(sub.player)))
		return 0
	}
}

// recordAsync persists the result in the background. Failures are logged only.
func (o *Orchestrator) recordAsync(result domain.MatchResult) {
	if o.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.RecordTimeout)
		defer cancel()
		if err := o.sink.RecordMatch(ctx, result); err != nil {
			o.log.Error("[MATCH] Error recording match",
				zap.String("session_id", result.SessionID),
				zap.Error(err))
			o.metrics.RecordFailed()
			return
		}
		o.log.Info("[MATCH] Match recorded", zap.String("session_id", result.SessionID))
	}()
}

// settle hands a finished round to the admission strategy.
func (o *Orchestrator) settle(e *entry, round int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.s.Status != domain.StatusFinished || e.s.Round != round {
		return
	}
	e.adm.settle(o, e)
}
