package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
	"github.com/rohitdahale/codebattle-backend/internal/service/result"
)

func TestMatchRowSummaryFromEitherSide(t *testing.T) {
	row := matchRow{
		sessionID: "s1", problemID: "two-sum",
		player1: "a", player2: "b", winner: "b",
		score1: 40, score2: 95, xp1: 29, xp2: 59, delta1: -16, delta2: 16,
	}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	a := row.summary("a", "Ada", "Bob", domain.OriginRoom, domain.EndBothSubmitted, at)
	assert.Equal(t, domain.PlayerID("b"), a.OpponentID)
	assert.Equal(t, "Bob", a.OpponentName)
	assert.Equal(t, 40, a.Score)
	assert.Equal(t, 95, a.OpponentScore)
	assert.Equal(t, -16, a.RatingChange)
	assert.False(t, a.Won)
	assert.False(t, a.Draw)

	b := row.summary("b", "Ada", "Bob", domain.OriginRoom, domain.EndBothSubmitted, at)
	assert.Equal(t, domain.PlayerID("a"), b.OpponentID)
	assert.Equal(t, 59, b.XPGained)
	assert.True(t, b.Won)

	row.winner = ""
	assert.True(t, row.summary("a", "Ada", "Bob", domain.OriginQueue, domain.EndTimeout, at).Draw)
}

// The database tests run only when CODEBATTLE_TEST_DATABASE_URL points at a
// disposable Postgres instance.
func testDB(t *testing.T) *MatchRepo {
	t.Helper()
	url := os.Getenv("CODEBATTLE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CODEBATTLE_TEST_DATABASE_URL not set")
	}
	db, err := Open(context.Background(), url, 4, 2, 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMatchRepo(db)
}

func TestSaveMatchRoundTrip(t *testing.T) {
	repo := testDB(t)
	ctx := context.Background()

	a := domain.PlayerID("a-" + uuid.NewString())
	b := domain.PlayerID("b-" + uuid.NewString())
	start := time.Now().UTC().Truncate(time.Millisecond)
	submitted := start.Add(time.Minute)
	res := domain.MatchResult{
		SessionID: uuid.NewString(),
		Origin:    domain.OriginQueue,
		Player1:   domain.PlayerResult{PlayerID: a, DisplayName: "Ada", Score: 95, Code: "return 1", SubmittedAt: &submitted},
		Player2:   domain.PlayerResult{PlayerID: b, DisplayName: "Bob", Score: 10},
		ProblemID: "two-sum",
		Winner:    &a,
		StartedAt: start,
		EndedAt:   start.Add(2 * time.Minute),
		EndReason: domain.EndTimeout,
	}

	rec := result.NewRecorder(repo, zap.NewNop())
	require.NoError(t, rec.RecordMatch(ctx, res))
	require.NoError(t, rec.RecordMatch(ctx, res))

	st, err := repo.PlayerStats(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 1, st.TotalMatches)
	assert.Equal(t, 59, st.XP)
	assert.Equal(t, 1216, st.Rating)

	history, err := repo.History(ctx, b, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, a, history[0].OpponentID)
	assert.Equal(t, -16, history[0].RatingChange)

	missing, err := repo.PlayerStats(ctx, "nobody-"+domain.PlayerID(uuid.NewString()))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
