package match

import (
	"context"
	"time"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

// Notifier delivers events to whoever listens on a topic. Implementations
// must not block; the orchestrator emits while holding session locks.
type Notifier interface {
	Emit(topic, event string, payload any)
	Join(topic string, player domain.PlayerID)
	Leave(topic string, player domain.PlayerID)
}

// Evaluator scores submitted code against a problem, 0 to 100.
type Evaluator interface {
	Evaluate(ctx context.Context, code string, problem domain.Problem) (int, error)
}

// ResultSink persists finished matches.
type ResultSink interface {
	RecordMatch(ctx context.Context, result domain.MatchResult) error
}

type ProblemBank interface {
	Random(difficulty, category string) (domain.Problem, error)
	ByID(id string) (domain.Problem, error)
}

// CodeRegistry reserves room codes outside this process so several
// instances never hand out the same code. It is optional.
type CodeRegistry interface {
	Reserve(ctx context.Context, code string) (bool, error)
	Release(ctx context.Context, code string) error
}

type Metrics interface {
	MatchStarted(origin domain.Origin)
	MatchFinished(origin domain.Origin, reason domain.EndReason)
	QueueSize(n int)
	LiveSessions(n int)
	RecordFailed()
}

// Timer is the handle of a delayed task.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time and delayed tasks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type nopMetrics struct{}

func (nopMetrics) MatchStarted(domain.Origin)                    {}
func (nopMetrics) MatchFinished(domain.Origin, domain.EndReason) {}
func (nopMetrics) QueueSize(int)                                 {}
func (nopMetrics) LiveSessions(int)                              {}
func (nopMetrics) RecordFailed()                                 {}

// Fanout emits every event to all of its notifiers in order.
type Fanout []Notifier

func (f Fanout) Emit(topic, event string, payload any) {
	for _, n := range f {
		n.Emit(topic, event, payload)
	}
}

func (f Fanout) Join(topic string, player domain.PlayerID) {
	for _, n := range f {
		n.Join(topic, player)
	}
}

func (f Fanout) Leave(topic string, player domain.PlayerID) {
	for _, n := range f {
		n.Leave(topic, player)
	}
}
