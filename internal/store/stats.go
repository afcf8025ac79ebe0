package store

import (
	"context"
	"fmt"
	"time"

	"github.com/daonin/chessdrill/internal/analyze"
)

// DrillStats summarizes the drill backlog and answer history.
type DrillStats struct {
	Drills     int            `json:"drills"`
	Unseen     int            `json:"unseen"`
	BySeverity map[int]int    `json:"by_severity"`
	ByPhase    map[string]int `json:"by_phase"`
	Attempts   int            `json:"attempts"`
	Best       int            `json:"best"`
	Acceptable int            `json:"acceptable"`
	Inferior   int            `json:"inferior"`
}

// DrillStats aggregates over all runs on file.
func (s *Store) DrillStats(ctx context.Context) (DrillStats, error) {
	st := DrillStats{
		BySeverity: make(map[int]int),
		ByPhase:    make(map[string]int),
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE NOT EXISTS
		          (SELECT 1 FROM attempts a WHERE a.drill_id = drills.id))
		 FROM drills`).Scan(&st.Drills, &st.Unseen)
	if err != nil {
		return st, fmt.Errorf("drill stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM drills GROUP BY severity`)
	if err != nil {
		return st, fmt.Errorf("drill stats: %w", err)
	}
	for rows.Next() {
		var sev, n int
		if err := rows.Scan(&sev, &n); err != nil {
			rows.Close()
			return st, fmt.Errorf("drill stats: %w", err)
		}
		st.BySeverity[sev] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("drill stats: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT phase, COUNT(*) FROM drills GROUP BY phase`)
	if err != nil {
		return st, fmt.Errorf("drill stats: %w", err)
	}
	for rows.Next() {
		var phase string
		var n int
		if err := rows.Scan(&phase, &n); err != nil {
			rows.Close()
			return st, fmt.Errorf("drill stats: %w", err)
		}
		st.ByPhase[phase] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("drill stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE quality = 'best'),
		        COUNT(*) FILTER (WHERE quality = 'acceptable'),
		        COUNT(*) FILTER (WHERE quality = 'inferior')
		 FROM attempts`).Scan(&st.Attempts, &st.Best, &st.Acceptable, &st.Inferior)
	if err != nil {
		return st, fmt.Errorf("drill stats: %w", err)
	}
	return st, nil
}

// MoveStats summarizes time usage and error rate over a run's moves.
// Only moves with a known time spent enter the timing figures.
type MoveStats struct {
	Moves      int     `json:"moves"`
	TimedMoves int     `json:"timed_moves"`
	AvgTimeSec float64 `json:"avg_time_sec"`
	LongThinks int     `json:"long_thinks"`
	FastMoves  int     `json:"fast_moves"`
	Blunders   int     `json:"blunders"`
}

// MoveStats aggregates the given run. Thresholds define what counts as
// a long think, a fast move, and a blunder.
func (s *Store) MoveStats(ctx context.Context, runID int64, t analyze.Thresholds) (MoveStats, error) {
	var st MoveStats
	longSec := int(t.LongThink / time.Second)
	fastSec := int(t.FastMove / time.Second)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE time_spent_sec >= 0),
		        COALESCE(AVG(time_spent_sec) FILTER (WHERE time_spent_sec >= 0), 0),
		        COUNT(*) FILTER (WHERE time_spent_sec > ?),
		        COUNT(*) FILTER (WHERE time_spent_sec >= 0 AND time_spent_sec < ?),
		        COUNT(*) FILTER (WHERE cp_loss >= ?)
		 FROM moves WHERE run_id = ?`,
		longSec, fastSec, t.BlunderCP, runID).
		Scan(&st.Moves, &st.TimedMoves, &st.AvgTimeSec, &st.LongThinks, &st.FastMoves, &st.Blunders)
	if err != nil {
		return st, fmt.Errorf("move stats for run %d: %w", runID, err)
	}
	return st, nil
}
