package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock runs delayed tasks only when the test advances it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every task that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// all returns every task ever scheduled, including stopped ones.
func (c *fakeClock) all() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

type event struct {
	topic   string
	name    string
	payload any
}

type recordingNotifier struct {
	mu      sync.Mutex
	events  []event
	members map[string]map[domain.PlayerID]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{members: make(map[string]map[domain.PlayerID]bool)}
}

func (n *recordingNotifier) Emit(topic, name string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{topic: topic, name: name, payload: payload})
}

func (n *recordingNotifier) Join(topic string, player domain.PlayerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.members[topic] == nil {
		n.members[topic] = make(map[domain.PlayerID]bool)
	}
	n.members[topic][player] = true
}

func (n *recordingNotifier) Leave(topic string, player domain.PlayerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.members[topic], player)
}

func (n *recordingNotifier) named(topic, name string) []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []event
	for _, ev := range n.events {
		if ev.topic == topic && ev.name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (n *recordingNotifier) count(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.name == name {
			c++
		}
	}
	return c
}

// scriptedEvaluator scores code by exact lookup. Unknown code scores 0.
type scriptedEvaluator struct {
	mu     sync.Mutex
	scores map[string]int
	calls  []string
	block  chan struct{}
	err    error
}

func (s *scriptedEvaluator) Evaluate(ctx context.Context, code string, _ domain.Problem) (int, error) {
	s.mu.Lock()
	s.calls = append(s.calls, code)
	block, err, score := s.block, s.err, s.scores[code]
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return 0, err
	}
	return score, nil
}

func (s *scriptedEvaluator) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type memorySink struct {
	mu      sync.Mutex
	results []domain.MatchResult
	err     error
}

func (m *memorySink) RecordMatch(_ context.Context, r domain.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return m.err
}

func (m *memorySink) recorded() []domain.MatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MatchResult(nil), m.results...)
}

type staticBank struct {
	problems []domain.Problem
}

func (b staticBank) Random(difficulty, _ string) (domain.Problem, error) {
	for _, p := range b.problems {
		if difficulty == "" || p.Difficulty == difficulty {
			return p, nil
		}
	}
	return domain.Problem{}, domain.ErrProblemNotFound
}

func (b staticBank) ByID(id string) (domain.Problem, error) {
	for _, p := range b.problems {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Problem{}, domain.ErrProblemNotFound
}

var testProblems = staticBank{problems: []domain.Problem{
	{ID: "two-sum", Title: "Two Sum", Difficulty: "easy", FunctionName: "twoSum"},
	{ID: "palindrome-number", Title: "Palindrome Number", Difficulty: "easy", FunctionName: "isPalindrome"},
	{ID: "merge-intervals", Title: "Merge Intervals", Difficulty: "medium", FunctionName: "merge"},
}}

type fakeRegistry struct {
	mu       sync.Mutex
	taken    map[string]bool
	released []string
	err      error
}

func (r *fakeRegistry) Reserve(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if r.taken[code] {
		return false, nil
	}
	r.taken[code] = true
	return true, nil
}

func (r *fakeRegistry) Release(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.taken, code)
	r.released = append(r.released, code)
	return nil
}

var errExecutorDown = errors.New("executor down")

type harness struct {
	o     *Orchestrator
	clock *fakeClock
	notes *recordingNotifier
	eval  *scriptedEvaluator
	sink  *memorySink

	mu     sync.Mutex
	codes  []string
	nextID int
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock: newFakeClock(),
		notes: newRecordingNotifier(),
		eval:  &scriptedEvaluator{scores: map[string]int{}},
		sink:  &memorySink{},
		codes: []string{"AB12CD", "EF34GH", "JK56LM", "NP78QR"},
	}
	ids := func() string {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.nextID++
		return fmt.Sprintf("session-%d", h.nextID)
	}
	codes := func() string {
		h.mu.Lock()
		defer h.mu.Unlock()
		code := h.codes[0]
		if len(h.codes) > 1 {
			h.codes = h.codes[1:]
		}
		return code
	}
	all := append([]Option{WithClock(h.clock), WithIDs(ids, codes)}, opts...)
	h.o = NewOrchestrator(cfg, zap.NewNop(), h.notes, h.eval, h.sink, testProblems, all...)
	return h
}

func player(id string) Player {
	return Player{ID: domain.PlayerID(id), Name: "Player " + id, Conn: domain.ConnRef("conn-" + id)}
}

// checkIndex verifies that every bound player sits in exactly the session the
// index says and that nobody is both queued and bound.
func checkIndex(t *testing.T, o *Orchestrator) {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()

	seen := make(map[domain.PlayerID]string)
	for id, e := range o.sessions {
		e.mu.Lock()
		for _, p := range e.s.Players() {
			if prev, dup := seen[p]; dup && !e.departed[p] {
				t.Errorf("player %s seated in %s and %s", p, prev, id)
			}
			seen[p] = id
		}
		e.mu.Unlock()
	}
	for p, id := range o.bound {
		if seen[p] != id {
			t.Errorf("index binds %s to %s but player sits in %q", p, id, seen[p])
		}
	}
	for _, qe := range o.queue {
		if _, ok := o.bound[qe.player.ID]; ok {
			t.Errorf("player %s is queued and bound", qe.player.ID)
		}
	}
}
