package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper drops stale sessions from the engine.
type Sweeper interface {
	Sweep(now time.Time) int
	RoomCodes() []string
}

// CodeRefresher keeps the room code reservations of live rooms from
// expiring.
type CodeRefresher interface {
	Refresh(ctx context.Context, code string) error
}

type Worker struct {
	Sweeper  Sweeper
	Codes    CodeRefresher
	Interval time.Duration
	log      *zap.Logger
}

// NewWorker builds a cleanup worker. codes may be nil when room codes are
// not shared between instances.
func NewWorker(s Sweeper, codes CodeRefresher, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{Sweeper: s, Codes: codes, Interval: interval, log: log}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.log.Info("[CLEANUP] Background worker started", zap.Duration("interval", w.Interval))
	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("[CLEANUP] Background worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single cleanup pass.
func (w *Worker) RunOnce(ctx context.Context) {
	if n := w.Sweeper.Sweep(time.Now()); n > 0 {
		w.log.Info("[CLEANUP] Removed stale sessions", zap.Int("count", n))
	}
	if w.Codes == nil {
		return
	}

	failed := 0
	for _, code := range w.Sweeper.RoomCodes() {
		if err := w.Codes.Refresh(ctx, code); err != nil {
			failed++
			w.log.Warn("[CLEANUP] Failed to refresh room code", zap.String("room_code", code), zap.Error(err))
		}
	}
	if failed > 0 {
		w.log.Warn("[CLEANUP] Room code refresh incomplete", zap.Int("failed", failed))
	}
}
