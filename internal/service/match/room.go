package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

const (
	maxCodeAttempts = 10
	registryTimeout = 2 * time.Second
)

// CreateRoom opens a private room hosted by p and returns its code.
func (o *Orchestrator) CreateRoom(p Player, settings domain.RoomSettings) (string, error) {
	problem, err := o.pickProblem(settings.ProblemID, settings.Difficulty, settings.Category)
	if err != nil {
		return "", err
	}
	code, err := o.reserveCode()
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.releaseLocked(p.ID); err != nil {
		o.dropCodeLocked(code)
		return "", err
	}

	now := o.clock.Now()
	s := domain.NewSession(o.newID(), domain.OriginRoom,
		domain.NewSlot(p.ID, p.Name, p.Conn), problem, roomTimeLimit(settings, o.cfg.TimeLimit), now)
	s.RoomCode = code
	settings.ProblemID = problem.ID
	s.Settings = settings

	e := &entry{s: s, adm: roomAdmission{}, touched: now}
	e.mu.Lock()
	defer e.mu.Unlock()

	o.addLocked(e)
	o.notifier.Join(e.topic(), p.ID)
	o.notifier.Emit(domain.PlayerTopic(p.ID), domain.EventRoomCreated, map[string]any{
		"roomCode": code,
		"room":     s.View(),
	})
	if !settings.IsPrivate {
		o.notifier.Emit(domain.TopicGlobal, domain.EventRoomUpdated, summarize(s))
	}

	o.log.Info("[ROOM] Room created",
		zap.String("room_code", code),
		zap.String("host_id", string(p.ID)),
		zap.String("problem", problem.ID))
	return code, nil
}

// JoinRoom seats p as the guest of the room with the given code.
func (o *Orchestrator) JoinRoom(code string, p Player) error {
	code = strings.ToUpper(strings.TrimSpace(code))

	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.roomLocked(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	e.mu.Lock()
	err := joinable(e, p.ID, o.bound[p.ID] == e.s.ID)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if err := o.releaseLocked(p.ID); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return domain.ErrRoomNotFound
	}
	if err := e.s.Seat(domain.NewSlot(p.ID, p.Name, p.Conn)); err != nil {
		return err
	}
	o.bound[p.ID] = e.s.ID
	e.touched = o.clock.Now()

	view := e.s.View()
	o.notifier.Join(e.topic(), p.ID)
	o.notifier.Emit(domain.PlayerTopic(p.ID), domain.EventRoomJoined, view)
	o.notifier.Emit(e.topic(), domain.EventRoomUpdated, view)

	o.log.Info("[ROOM] Player joined room",
		zap.String("room_code", code),
		zap.String("player_id", string(p.ID)))
	return nil
}

func joinable(e *entry, player domain.PlayerID, seated bool) error {
	switch {
	case e.closed:
		return domain.ErrRoomNotFound
	case e.s.IsHost(player):
		return domain.ErrAlreadyHost
	case seated:
		return domain.ErrAlreadyInSession
	case e.s.IsFull():
		return domain.ErrRoomFull
	case e.s.Status != domain.StatusWaiting:
		return domain.ErrRoomNotJoinable
	}
	return nil
}

// LeaveRoom takes the player out of their room. Leaving during a round
// forfeits it.
func (o *Orchestrator) LeaveRoom(player domain.PlayerID) error {
	o.mu.Lock()
	e, ok := o.lookupLocked(player)
	if !ok || e.adm.origin() != domain.OriginRoom {
		o.mu.Unlock()
		return domain.ErrNotInQueueOrSession
	}
	e.mu.Lock()
	r := o.leaveLocked(e, player)
	e.mu.Unlock()
	o.mu.Unlock()

	if r != nil {
		o.notifier.Emit(domain.PlayerTopic(player), domain.EventRoomLeft, map[string]any{"roomCode": e.s.RoomCode})
		o.resolve(e, r)
	}
	return nil
}

// StartMatch lets the host begin the round without waiting for ready signals.
func (o *Orchestrator) StartMatch(host domain.PlayerID) error {
	e, ok := o.lookup(host)
	if !ok {
		return domain.ErrNotInQueueOrSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.closed:
		return domain.ErrNotInQueueOrSession
	case e.adm.origin() != domain.OriginRoom || !e.s.IsHost(host):
		return domain.ErrNotHost
	case !e.s.IsFull():
		return domain.ErrInsufficientPlayers
	case e.s.Status != domain.StatusReady:
		return domain.ErrInvalidSessionState
	}
	e.stopTimer()
	return o.activateLocked(e)
}

// ChangeProblem swaps the room's problem. An empty problemID picks a random
// one matching the room settings.
func (o *Orchestrator) ChangeProblem(host domain.PlayerID, problemID string) error {
	e, ok := o.lookup(host)
	if !ok {
		return domain.ErrNotInQueueOrSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.closed:
		return domain.ErrNotInQueueOrSession
	case e.adm.origin() != domain.OriginRoom || !e.s.IsHost(host):
		return domain.ErrNotHost
	case e.resolving || e.s.Status == domain.StatusActive:
		return domain.ErrInvalidSessionState
	}

	problem, err := o.pickProblem(problemID, e.s.Settings.Difficulty, e.s.Settings.Category)
	if err != nil {
		return err
	}
	if err := e.s.ChangeProblem(problem); err != nil {
		return err
	}
	e.s.Settings.ProblemID = problem.ID
	e.touched = o.clock.Now()

	o.notifier.Emit(e.topic(), domain.EventProblemChanged, e.s.View())
	o.log.Info("[ROOM] Problem changed",
		zap.String("room_code", e.s.RoomCode),
		zap.String("problem", problem.ID))
	return nil
}

// Room returns a snapshot of the room with the given code.
func (o *Orchestrator) Room(code string) (domain.SessionView, error) {
	o.mu.Lock()
	e, ok := o.roomLocked(strings.ToUpper(code))
	o.mu.Unlock()
	if !ok {
		return domain.SessionView{}, domain.ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.SessionView{}, domain.ErrRoomNotFound
	}
	return e.s.View(), nil
}

// Rooms lists public rooms waiting for a guest, newest first.
func (o *Orchestrator) Rooms() []domain.RoomSummary {
	list := make([]domain.RoomSummary, 0)
	for _, e := range o.entries() {
		e.mu.Lock()
		if e.s.Origin == domain.OriginRoom && !e.s.Settings.IsPrivate && e.s.Status == domain.StatusWaiting {
			list = append(list, summarize(e.s))
		}
		e.mu.Unlock()
	}
	return pie.SortUsing(list, func(a, b domain.RoomSummary) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func summarize(s *domain.Session) domain.RoomSummary {
	sum := domain.RoomSummary{
		Code:       s.RoomCode,
		Players:    len(s.Players()),
		Status:     s.Status,
		ProblemID:  s.Problem.ID,
		Title:      s.Problem.Title,
		Difficulty: s.Problem.Difficulty,
		TimeLimit:  int(s.TimeLimit.Seconds()),
		CreatedAt:  s.CreatedAt,
	}
	if s.Player1 != nil {
		sum.HostName = s.Player1.DisplayName
	}
	return sum
}

func (o *Orchestrator) roomLocked(code string) (*entry, bool) {
	id := o.rooms[code]
	if id == "" {
		return nil, false
	}
	e, ok := o.sessions[id]
	return e, ok
}

func (o *Orchestrator) pickProblem(id, difficulty, category string) (domain.Problem, error) {
	if id != "" {
		p, err := o.problems.ByID(id)
		if err != nil {
			return domain.Problem{}, fmt.Errorf("problem %q: %w", id, domain.ErrProblemNotFound)
		}
		return p, nil
	}
	return o.problems.Random(difficulty, category)
}

func roomTimeLimit(settings domain.RoomSettings, def time.Duration) time.Duration {
	if settings.TimeLimit <= 0 {
		return def
	}
	d := time.Duration(settings.TimeLimit) * time.Second
	if d < domain.MinTimeLimit {
		return domain.MinTimeLimit
	}
	if d > domain.MaxTimeLimit {
		return domain.MaxTimeLimit
	}
	return d
}

// reserveCode picks a room code no live room uses. The code is held in the
// rooms map with an empty session id until the room is registered.
func (o *Orchestrator) reserveCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := o.newCode()

		o.mu.Lock()
		_, taken := o.rooms[code]
		if !taken {
			o.rooms[code] = ""
		}
		o.mu.Unlock()
		if taken {
			continue
		}
		if o.codes == nil {
			return code, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		ok, err := o.codes.Reserve(ctx, code)
		cancel()
		if err != nil {
			o.log.Warn("[ROOM] Code registry unavailable, using local check only", zap.Error(err))
			return code, nil
		}
		if ok {
			return code, nil
		}

		o.mu.Lock()
		delete(o.rooms, code)
		o.mu.Unlock()
	}
	return "", fmt.Errorf("no free room code after %d attempts", maxCodeAttempts)
}

func (o *Orchestrator) dropCodeLocked(code string) {
	if id, ok := o.rooms[code]; ok && id == "" {
		delete(o.rooms, code)
	}
	o.releaseCode(code)
}

func (o *Orchestrator) releaseCode(code string) {
	if o.codes == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
		defer cancel()
		if err := o.codes.Release(ctx, code); err != nil {
			o.log.Warn("[ROOM] Failed to release room code", zap.String("room_code", code), zap.Error(err))
		}
	}()
}
