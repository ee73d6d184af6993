package evaluator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

// Inner is anything that can score a submission.
type Inner interface {
	Evaluate(ctx context.Context, code string, problem domain.Problem) (int, error)
}

// Observer receives the outcome and latency of every evaluation.
type Observer interface {
	ObserveEvaluation(outcome string, elapsed time.Duration)
}

const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Guard bounds an Inner evaluator: calls give up after the timeout, and
// scores always land in [0, 100].
type Guard struct {
	inner   Inner
	timeout time.Duration
	obs     Observer
	log     *zap.Logger
}

func NewGuard(inner Inner, timeout time.Duration, obs Observer, log *zap.Logger) *Guard {
	return &Guard{inner: inner, timeout: timeout, obs: obs, log: log}
}

type scored struct {
	score int
	err   error
}

func (g *Guard) Evaluate(ctx context.Context, code string, problem domain.Problem) (int, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan scored, 1)
	go func() {
		score, err := g.inner.Evaluate(ctx, code, problem)
		done <- scored{score: score, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			g.observe(OutcomeError, start)
			return 0, fmt.Errorf("%w: %v", domain.ErrEvaluationUnavailable, r.err)
		}
		g.observe(OutcomeOK, start)
		return domain.ClampScore(r.score), nil
	case <-ctx.Done():
		g.observe(OutcomeTimeout, start)
		g.log.Warn("[EVAL] Evaluation timed out",
			zap.String("problem", problem.ID),
			zap.Duration("timeout", g.timeout))
		return 0, fmt.Errorf("%w: %v", domain.ErrEvaluationUnavailable, ctx.Err())
	}
}

func (g *Guard) observe(outcome string, start time.Time) {
	if g.obs != nil {
		g.obs.ObserveEvaluation(outcome, time.Since(start))
	}
}
