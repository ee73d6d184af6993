package match

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
	"github.com/rohitdahale/codebattle-backend/pkg/uid"
)

// Config holds the timing knobs of the engine. A zero or negative field takes
// its value from DefaultConfig; callers that need other values must set them
// positive.
type Config struct {
	TimeLimit         time.Duration
	RecycleDelay      time.Duration
	QueueAutoStart    time.Duration
	EvaluationTimeout time.Duration
	RecordTimeout     time.Duration
	WaitingRetention  time.Duration
	FinishedRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		TimeLimit:         domain.DefaultTimeLimit,
		RecycleDelay:      domain.DefaultRecycleWait,
		QueueAutoStart:    15 * time.Second,
		EvaluationTimeout: 12 * time.Second,
		RecordTimeout:     10 * time.Second,
		WaitingRetention:  2 * time.Hour,
		FinishedRetention: time.Hour,
	}
}

// Player identifies the caller of an admission operation.
type Player struct {
	ID   domain.PlayerID
	Name string
	Conn domain.ConnRef
}

type queueEntry struct {
	player     Player
	enqueuedAt time.Time
}

// entry wraps a Session with the lock that serializes every mutation of it.
type entry struct {
	mu        sync.Mutex
	s         *domain.Session
	adm       admission
	timer     Timer
	resolving bool
	closed    bool
	departed  map[domain.PlayerID]bool
	touched   time.Time
}

func (e *entry) topic() string {
	if e.s.RoomCode != "" {
		return e.s.RoomCode
	}
	return e.s.ID
}

func (e *entry) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Orchestrator owns the queue, the rooms and every live Session.
//
// Lock order is o.mu before entry.mu. Code holding an entry lock never takes
// o.mu, and evaluation runs with no lock held.
type Orchestrator struct {
	cfg      Config
	log      *zap.Logger
	notifier Notifier
	eval     Evaluator
	sink     ResultSink
	problems ProblemBank
	codes    CodeRegistry
	metrics  Metrics
	clock    Clock
	newID    func() string
	newCode  func() string

	mu       sync.Mutex
	sessions map[string]*entry
	rooms    map[string]string
	bound    map[domain.PlayerID]string
	queue    []queueEntry

	live atomic.Int64
}

type Option func(*Orchestrator)

func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithCodeRegistry(r CodeRegistry) Option {
	return func(o *Orchestrator) { o.codes = r }
}

func WithIDs(session, room func() string) Option {
	return func(o *Orchestrator) {
		if session != nil {
			o.newID = session
		}
		if room != nil {
			o.newCode = room
		}
	}
}

func NewOrchestrator(cfg Config, log *zap.Logger, notifier Notifier, eval Evaluator, sink ResultSink, problems ProblemBank, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = def.TimeLimit
	}
	if cfg.RecycleDelay <= 0 {
		cfg.RecycleDelay = def.RecycleDelay
	}
	if cfg.EvaluationTimeout <= 0 {
		cfg.EvaluationTimeout = def.EvaluationTimeout
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = def.RecordTimeout
	}
	if cfg.WaitingRetention <= 0 {
		cfg.WaitingRetention = def.WaitingRetention
	}
	if cfg.FinishedRetention <= 0 {
		cfg.FinishedRetention = def.FinishedRetention
	}

	o := &Orchestrator{
		cfg:      cfg,
		log:      log,
		notifier: notifier,
		eval:     eval,
		sink:     sink,
		problems: problems,
		metrics:  nopMetrics{},
		clock:    realClock{},
		newID:    uid.NewSessionID,
		newCode:  uid.NewRoomCode,
		sessions: make(map[string]*entry),
		rooms:    make(map[string]string),
		bound:    make(map[domain.PlayerID]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// lookup returns the entry the player is bound to.
func (o *Orchestrator) lookup(player domain.PlayerID) (*entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lookupLocked(player)
}

func (o *Orchestrator) lookupLocked(player domain.PlayerID) (*entry, bool) {
	id, ok := o.bound[player]
	if !ok {
		return nil, false
	}
	e, ok := o.sessions[id]
	return e, ok
}

// addLocked registers a new session in the store. Caller holds o.mu.
func (o *Orchestrator) addLocked(e *entry) {
	o.sessions[e.s.ID] = e
	if e.s.RoomCode != "" {
		o.rooms[e.s.RoomCode] = e.s.ID
	}
	for _, p := range e.s.Players() {
		o.bound[p] = e.s.ID
	}
}

// unbindLocked drops player from the index if still bound to sessionID.
func (o *Orchestrator) unbindLocked(player domain.PlayerID, sessionID string) {
	if o.bound[player] == sessionID {
		delete(o.bound, player)
	}
}

// disposeLocked removes a session and all of its bindings. Caller holds o.mu
// and e.mu.
func (o *Orchestrator) disposeLocked(e *entry) {
	e.closed = true
	e.stopTimer()
	for _, p := range e.s.Players() {
		o.unbindLocked(p, e.s.ID)
		o.notifier.Leave(e.topic(), p)
	}
	for p := range e.departed {
		o.unbindLocked(p, e.s.ID)
	}
	delete(o.sessions, e.s.ID)
	if e.s.RoomCode != "" && o.rooms[e.s.RoomCode] == e.s.ID {
		delete(o.rooms, e.s.RoomCode)
		o.releaseCode(e.s.RoomCode)
	}
}

// releaseLocked frees player from whatever they are doing so they can be
// admitted elsewhere. Idle rooms are left; a queue spot is dropped. A match
// that is paired or running cannot be abandoned this way.
func (o *Orchestrator) releaseLocked(player domain.PlayerID) error {
	o.removeFromQueueLocked(player)

	e, ok := o.lookupLocked(player)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.adm.origin() != domain.OriginRoom || e.resolving || e.s.Status == domain.StatusActive {
		return domain.ErrAlreadyInSession
	}
	e.adm.depart(o, e, player)
	return nil
}

// StatusInfo is a summary of what the engine currently holds.
type StatusInfo struct {
	WaitingPlayers int `json:"waitingPlayers"`
	LiveSessions   int `json:"liveSessions"`
	Sessions       int `json:"sessions"`
	Rooms          int `json:"rooms"`
	BoundPlayers   int `json:"boundPlayers"`
}

func (o *Orchestrator) Status() StatusInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	rooms := 0
	for _, id := range o.rooms {
		if id != "" {
			rooms++
		}
	}
	return StatusInfo{
		WaitingPlayers: len(o.queue),
		LiveSessions:   int(o.live.Load()),
		Sessions:       len(o.sessions),
		Rooms:          rooms,
		BoundPlayers:   len(o.bound),
	}
}

// RoomCodes lists the codes of every registered room.
func (o *Orchestrator) RoomCodes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	codes := make([]string, 0, len(o.rooms))
	for code, id := range o.rooms {
		if id != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// Snapshot returns the session the player is bound to.
func (o *Orchestrator) Snapshot(player domain.PlayerID) (domain.SessionView, error) {
	e, ok := o.lookup(player)
	if !ok {
		return domain.SessionView{}, domain.ErrNotInQueueOrSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.View(), nil
}

// inQueue reports whether player holds a queue spot.
func (o *Orchestrator) inQueue(player domain.PlayerID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queueIndexLocked(player) >= 0
}

// Session returns a snapshot by session id.
func (o *Orchestrator) Session(id string) (domain.SessionView, error) {
	o.mu.Lock()
	e, ok := o.sessions[id]
	o.mu.Unlock()
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.View(), nil
}

// LiveSessions lists the sessions with a round in progress.
func (o *Orchestrator) LiveSessions() []domain.SessionView {
	views := make([]domain.SessionView, 0)
	for _, e := range o.entries() {
		e.mu.Lock()
		if e.s.Status == domain.StatusActive {
			views = append(views, e.s.View())
		}
		e.mu.Unlock()
	}
	return views
}

func (o *Orchestrator) entries() []*entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	list := make([]*entry, 0, len(o.sessions))
	for _, e := range o.sessions {
		list = append(list, e)
	}
	return list
}

// Sweep drops sessions that outlived their purpose: rooms left waiting too
// long, finished sessions nobody recycled, and rounds whose timeout never
// fired. It returns how many sessions were touched.
func (o *Orchestrator) Sweep(now time.Time) int {
	var overdue []*entry
	count := 0

	o.mu.Lock()
	for _, e := range o.sessions {
		e.mu.Lock()
		switch {
		case e.resolving:
		case e.s.Status == domain.StatusActive:
			if now.After(e.s.Deadline().Add(o.cfg.EvaluationTimeout)) {
				overdue = append(overdue, e)
			}
		case e.s.Status == domain.StatusFinished && e.s.EndedAt != nil && now.Sub(*e.s.EndedAt) > o.cfg.FinishedRetention:
			o.notifyDeletedLocked(e)
			o.disposeLocked(e)
			count++
		case e.s.Status != domain.StatusFinished && now.Sub(e.touched) > o.cfg.WaitingRetention:
			o.notifyDeletedLocked(e)
			o.disposeLocked(e)
			count++
		}
		e.mu.Unlock()
	}
	o.metrics.QueueSize(len(o.queue))
	o.mu.Unlock()

	for _, e := range overdue {
		if o.expire(e, 0, domain.EndTimeout) {
			count++
		}
	}
	if count > 0 {
		o.log.Info("[CLEANUP] Swept stale sessions", zap.Int("count", count))
	}
	return count
}

func (o *Orchestrator) notifyDeletedLocked(e *entry) {
	if e.s.Origin == domain.OriginRoom {
		o.notifier.Emit(e.topic(), domain.EventRoomDeleted, map[string]any{"roomCode": e.s.RoomCode})
		o.notifier.Emit(domain.TopicGlobal, domain.EventRoomDeleted, map[string]any{"roomCode": e.s.RoomCode})
	} else {
		o.notifier.Emit(e.topic(), domain.EventMatchCancelled, map[string]any{"sessionId": e.s.ID})
	}
}
