package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubSweeper struct {
	mu     sync.Mutex
	sweeps int
	codes  []string
}

func (s *stubSweeper) Sweep(time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	return 1
}

func (s *stubSweeper) RoomCodes() []string { return s.codes }

func (s *stubSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

type stubRefresher struct {
	mu        sync.Mutex
	refreshed []string
	fail      string
}

func (r *stubRefresher) Refresh(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code == r.fail {
		return errors.New("redis down")
	}
	r.refreshed = append(r.refreshed, code)
	return nil
}

func TestRunOnceRefreshesLiveRoomCodes(t *testing.T) {
	sw := &stubSweeper{codes: []string{"AB12CD", "EF34GH", "JK56LM"}}
	ref := &stubRefresher{fail: "EF34GH"}
	w := NewWorker(sw, ref, time.Minute, zap.NewNop())

	w.RunOnce(context.Background())

	assert.Equal(t, 1, sw.count())
	assert.Equal(t, []string{"AB12CD", "JK56LM"}, ref.refreshed)
}

func TestRunOnceWithoutRegistry(t *testing.T) {
	sw := &stubSweeper{codes: []string{"AB12CD"}}
	w := NewWorker(sw, nil, 0, zap.NewNop())

	assert.Equal(t, 5*time.Minute, w.Interval)
	w.RunOnce(context.Background())
	assert.Equal(t, 1, sw.count())
}

func TestRunStopsWithContext(t *testing.T) {
	sw := &stubSweeper{}
	w := NewWorker(sw, nil, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sw.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
