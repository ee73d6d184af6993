package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
	"github.com/rohitdahale/codebattle-backend/internal/service/result"
)

type MatchRepo struct {
	DB *sql.DB
}

func NewMatchRepo(db *sql.DB) *MatchRepo {
	return &MatchRepo{DB: db}
}

// SaveMatch stores a finished match and the stat changes apply computes, in
// one transaction. Both player rows are locked for the duration. A match that
// is already stored is left untouched and apply is not called.
func (r *MatchRepo) SaveMatch(ctx context.Context, res domain.MatchResult, apply result.ApplyFunc) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM matches WHERE session_id = $1 AND started_at = $2)`,
		res.SessionID, res.StartedAt).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check match: %w", err)
	}
	if exists {
		return nil
	}

	for _, p := range []domain.PlayerResult{res.Player1, res.Player2} {
		if err := ensurePlayerTx(ctx, tx, p); err != nil {
			return err
		}
	}
	p1, p2, err := lockPlayersTx(ctx, tx, res.Player1.PlayerID, res.Player2.PlayerID)
	if err != nil {
		return err
	}

	settled := apply(p1, p2)

	for _, st := range []*domain.PlayerStats{p1, p2} {
		if err := updatePlayerTx(ctx, tx, st); err != nil {
			return err
		}
	}

	var winner any
	if res.Winner != nil {
		winner = string(*res.Winner)
	}
	query := `
	INSERT INTO matches (session_id, match_type, problem_id, player1_id, player2_id, winner_id,
		player1_score, player2_score, player1_code, player2_code, player1_submitted, player2_submitted,
		player1_xp, player2_xp, player1_rating_change, player2_rating_change, end_reason, started_at, ended_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (session_id, started_at) DO NOTHING;
	`
	_, err = tx.ExecContext(ctx, query,
		res.SessionID, string(res.Origin), res.ProblemID,
		string(res.Player1.PlayerID), string(res.Player2.PlayerID), winner,
		res.Player1.Score, res.Player2.Score, res.Player1.Code, res.Player2.Code,
		nullTime(res.Player1.SubmittedAt), nullTime(res.Player2.SubmittedAt),
		settled[0].XPGained, settled[1].XPGained,
		settled[0].RatingAfter-settled[0].RatingBefore, settled[1].RatingAfter-settled[1].RatingBefore,
		string(res.EndReason), res.StartedAt, res.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func ensurePlayerTx(ctx context.Context, tx *sql.Tx, p domain.PlayerResult) error {
	query := `
	INSERT INTO players (player_id, display_name)
	VALUES ($1, $2)
	ON CONFLICT (player_id) DO UPDATE SET
		display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE players.display_name END;
	`
	if _, err := tx.ExecContext(ctx, query, string(p.PlayerID), p.DisplayName); err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", p.PlayerID, err)
	}
	return nil
}

// lockPlayersTx reads both rows FOR UPDATE, always in player_id order so two
// concurrent matches sharing a player cannot deadlock.
func lockPlayersTx(ctx context.Context, tx *sql.Tx, a, b domain.PlayerID) (*domain.PlayerStats, *domain.PlayerStats, error) {
	rows, err := tx.QueryContext(ctx, `
	SELECT player_id, display_name, xp, level, wins, total_matches, win_rate, rating
	FROM players
	WHERE player_id IN ($1, $2)
	ORDER BY player_id
	FOR UPDATE;
	`, string(a), string(b))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock players: %w", err)
	}
	defer rows.Close()

	found := make(map[domain.PlayerID]*domain.PlayerStats, 2)
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, nil, err
		}
		found[st.PlayerID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read players: %w", err)
	}
	if found[a] == nil || found[b] == nil {
		return nil, nil, fmt.Errorf("players %s and %s not both present", a, b)
	}
	return found[a], found[b], nil
}

func updatePlayerTx(ctx context.Context, tx *sql.Tx, st *domain.PlayerStats) error {
	query := `
	UPDATE players
	SET xp = $2, level = $3, wins = $4, total_matches = $5, win_rate = $6, rating = $7, updated_at = NOW()
	WHERE player_id = $1;
	`
	_, err := tx.ExecContext(ctx, query, string(st.PlayerID), st.XP, st.Level, st.Wins, st.TotalMatches, st.WinRate, st.Rating)
	if err != nil {
		return fmt.Errorf("failed to update player stats in transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStats(s scanner) (*domain.PlayerStats, error) {
	var st domain.PlayerStats
	var id string
	if err := s.Scan(&id, &st.DisplayName, &st.XP, &st.Level, &st.Wins, &st.TotalMatches, &st.WinRate, &st.Rating); err != nil {
		return nil, fmt.Errorf("failed to scan player: %w", err)
	}
	st.PlayerID = domain.PlayerID(id)
	return &st, nil
}

// PlayerStats returns the stored progression of a player, or nil when the
// player has never finished a match.
func (r *MatchRepo) PlayerStats(ctx context.Context, id domain.PlayerID) (*domain.PlayerStats, error) {
	row := r.DB.QueryRowContext(ctx, `
	SELECT player_id, display_name, xp, level, wins, total_matches, win_rate, rating
	FROM players WHERE player_id = $1;
	`, string(id))
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

// History lists the latest matches of a player, newest first.
func (r *MatchRepo) History(ctx context.Context, id domain.PlayerID, limit int) ([]domain.MatchSummary, error) {
	query := `
	SELECT m.session_id, m.match_type, m.problem_id, m.player1_id, m.player2_id, m.winner_id,
	       m.player1_score, m.player2_score, m.player1_xp, m.player2_xp,
	       m.player1_rating_change, m.player2_rating_change, m.end_reason, m.ended_at,
	       p1.display_name, p2.display_name
	FROM matches m
	JOIN players p1 ON p1.player_id = m.player1_id
	JOIN players p2 ON p2.player_id = m.player2_id
	WHERE m.player1_id = $1 OR m.player2_id = $1
	ORDER BY m.ended_at DESC
	LIMIT $2;
	`
	rows, err := r.DB.QueryContext(ctx, query, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.MatchSummary, 0)
	for rows.Next() {
		var (
			row               matchRow
			winner            sql.NullString
			matchType, reason string
			name1, name2      string
			endedAt           time.Time
		)
		err := rows.Scan(&row.sessionID, &matchType, &row.problemID, &row.player1, &row.player2, &winner,
			&row.score1, &row.score2, &row.xp1, &row.xp2, &row.delta1, &row.delta2, &reason, &endedAt,
			&name1, &name2)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		row.winner = winner.String
		history = append(history, row.summary(id, name1, name2, domain.Origin(matchType), domain.EndReason(reason), endedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read match history: %w", err)
	}
	return history, nil
}

type matchRow struct {
	sessionID, problemID string
	player1, player2     string
	winner               string
	score1, score2       int
	xp1, xp2             int
	delta1, delta2       int
}

// summary flips the row so the requesting player is always "self".
func (m matchRow) summary(self domain.PlayerID, name1, name2 string, origin domain.Origin, reason domain.EndReason, endedAt time.Time) domain.MatchSummary {
	s := domain.MatchSummary{
		SessionID: m.sessionID,
		MatchType: origin,
		ProblemID: m.problemID,
		Won:       m.winner == string(self),
		Draw:      m.winner == "",
		EndReason: reason,
		EndedAt:   endedAt,
	}
	if m.player1 == string(self) {
		s.OpponentID, s.OpponentName = domain.PlayerID(m.player2), name2
		s.Score, s.OpponentScore = m.score1, m.score2
		s.XPGained, s.RatingChange = m.xp1, m.delta1
	} else {
		s.OpponentID, s.OpponentName = domain.PlayerID(m.player1), name1
		s.Score, s.OpponentScore = m.score2, m.score1
		s.XPGained, s.RatingChange = m.xp2, m.delta2
	}
	return s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
